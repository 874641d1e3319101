package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *PipelineError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Stage errors

func CheckoutError(repo string, cause error) *PipelineError {
	return Wrap(cause, CategoryGit, SeverityFatal, "source checkout failed").
		WithContext("repository", repo)
}

func PreflightError(cause error) *PipelineError {
	return Wrap(cause, CategoryPreflight, SeverityFatal, "environment preflight failed")
}

func RenderError(cause error) *PipelineError {
	return Wrap(cause, CategoryRender, SeverityFatal, "renderer invocation failed")
}

func StampError(cause error) *PipelineError {
	return Wrap(cause, CategoryStamp, SeverityFatal, "domain marker stamping failed")
}

func VerifyError(cause error) *PipelineError {
	return Wrap(cause, CategoryVerify, SeverityFatal, "output verification failed")
}

func PublishError(target string, cause error) *PipelineError {
	return Wrap(cause, CategoryPublish, SeverityFatal, "publish to hosting target failed").
		WithContext("target", target)
}

func PublishAuthError(target string, cause error) *PipelineError {
	return Wrap(cause, CategoryAuth, SeverityFatal, "publish authentication failed").
		WithContext("target", target)
}

func WorkspaceError(operation string, cause error) *PipelineError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

// Internal errors

func InternalError(message string, cause error) *PipelineError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
