package rpc

// RPC method constants
const (
	// System methods
	MethodPing = "ping"

	// Scope methods
	MethodScopeSearch      = "scope.search"
	MethodScopePreview     = "scope.preview"
	MethodScopeActivate    = "scope.activate"
	MethodScopeCancel      = "scope.cancel"
	MethodScopeDepartments = "scope.departments"

	// Admin methods
	MethodCacheClear = "admin.clearCache"
)

// Event constants for notifications
const (
	// EventScopeCategory announces a category before its first result.
	EventScopeCategory = "scope.category"

	// EventScopeResult carries one search result as it is pushed.
	EventScopeResult = "scope.result"

	// EventScopeActivated tells every window of a session that a result changed.
	EventScopeActivated = "scope.activated"

	// EventAccountChanged tells shells to invalidate their results.
	EventAccountChanged = "scope.accountChanged"
)
