package i18n

// Error codes must match the codes defined in internal/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeObjectKeyEmpty = "OBJECT_KEY_EMPTY"
	CodeRefNameEmpty   = "REF_NAME_EMPTY"
	CodeOutOfRange     = "OUT_OF_RANGE"
	CodeLengthMismatch = "LENGTH_MISMATCH"
	CodeRepoNameEmpty  = "REPO_NAME_EMPTY"
	CodeRepoNotFound   = "REPO_NOT_FOUND"
	CodeRepoExists     = "REPO_EXISTS"
	CodeNotFound       = "NOT_FOUND"
	CodeSequenceGap    = "SEQUENCE_GAP"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		// Access control errors
		CodeUnauthorized: "Caller does not hold the {{.Role}} role",

		// Object ledger errors
		CodeObjectKeyEmpty: "Object key cannot be empty",

		// Ref ledger errors
		CodeRefNameEmpty: "Ref name cannot be empty",

		// Shared store errors
		CodeOutOfRange:     "Position {{.Position}} is beyond the end of the sequence",
		CodeLengthMismatch: "Batch arrays must have equal lengths ({{.Left}} vs {{.Right}})",

		// Repository registry errors
		CodeRepoNameEmpty: "Repository name cannot be empty",
		CodeRepoNotFound:  "Repository not found",
		CodeRepoExists:    "Repository already exists",

		// Journal errors
		CodeNotFound:    "Record not found",
		CodeSequenceGap: "Event sequence has a gap at {{.Seq}}",
	},
}
