package domain

// CommonOptions contains shared options for orchestration and strategies.
type CommonOptions struct {
	Verbose bool
	Force   bool
	NoCache bool
	Token   string
}
