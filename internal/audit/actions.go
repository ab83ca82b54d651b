package audit

// Action tags.
const (
	ActionLogin          = "LOGIN"
	ActionLogout         = "LOGOUT"
	ActionChangePassword = "CHANGE_PASSWORD"

	ActionCreateUser        = "CREATE_USER"
	ActionActivateUser      = "ACTIVATE_USER"
	ActionDeactivateUser    = "DEACTIVATE_USER"
	ActionChangeRole        = "CHANGE_ROLE"
	ActionResetPassword     = "RESET_PASSWORD"
	ActionUpdatePermissions = "UPDATE_PERMISSIONS"
	ActionGrantPermission   = "GRANT_PERMISSION"
	ActionRevokePermission  = "REVOKE_PERMISSION"

	ActionCreateClient          = "CREATE_CLIENT"
	ActionCreateStorageLocation = "CREATE_STORAGE_LOCATION"

	ActionCreateBox       = "CREATE_BOX"
	ActionChangeBoxStatus = "CHANGE_BOX_STATUS"

	ActionCreateRetrieval            = "CREATE_RETRIEVAL"
	ActionUpdateRetrievalSignatures  = "UPDATE_RETRIEVAL_SIGNATURES"
	ActionBoxStatusChangeOnRetrieval = "BOX_STATUS_CHANGE_ON_RETRIEVAL"
	ActionUpdateRetrievalPDF         = "UPDATE_RETRIEVAL_PDF"
	ActionManualMarkBoxRetrieved     = "MANUAL_MARK_BOX_RETRIEVED"
	ActionDeleteRetrieval            = "DELETE_RETRIEVAL"
)

// Subject types.
const (
	SubjectUser        = "user"
	SubjectPermissions = "permissions"
	SubjectClient      = "client"
	SubjectLocation    = "storage_location"
	SubjectBox         = "box"
	SubjectRetrieval   = "retrieval"
)
