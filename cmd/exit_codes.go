package cmd

// Exit codes with special meaning
// (default is 1 for other errors and 0 on success)
const (
	Success = iota
	BadArgs
	BadPassword
	UnknownError
)
