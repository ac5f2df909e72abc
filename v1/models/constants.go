package models

// Log operation names used by the consent services
const (
	OpConnect            = "connect wallet"
	OpRefreshConsentList = "refresh consent list"
	OpAllow              = "allow address"
	OpDeny               = "deny address"
	OpExportCSV          = "export consent list"
	OpResolveProfiles    = "resolve social profiles"
	OpCloseSession       = "close session"
	OpApplyAction        = "apply permission action"
	OpRecordPeer         = "record peer"
	OpReconcileExternal  = "reconcile external records"
)

// PermissionAction is the action requested through the API
type PermissionAction string

const (
	ActionAllow PermissionAction = "allow"
	ActionDeny  PermissionAction = "deny"
)

// Permission returns the permission an action writes, or "" for unknown actions.
func (a PermissionAction) Permission() Permission {
	switch a {
	case ActionAllow:
		return PermissionAllowed
	case ActionDeny:
		return PermissionDenied
	default:
		return ""
	}
}

// Messaging network environments
const (
	EnvLocal      = "local"
	EnvDev        = "dev"
	EnvProduction = "production"
)

// IsValidEnv reports whether env names a known messaging environment.
func IsValidEnv(env string) bool {
	switch env {
	case EnvLocal, EnvDev, EnvProduction:
		return true
	default:
		return false
	}
}
