package constants

// Activity and workflow names used for registration and execution.
const (
	ResearchWorkflowName = "ResearchWorkflow"

	// Lifecycle activities
	StartResearchActivity    = "StartResearch"
	CompleteResearchActivity = "CompleteResearch"
	FailResearchActivity     = "FailResearch"

	// Pipeline activities
	AwaitProvidersActivity     = "AwaitProviders"
	ExploreSubQuestionActivity = "ExploreSubQuestion"

	// Delivery activities
	AppendTranscriptActivity = "AppendTranscript"
	DeliverToTrackerActivity = "DeliverToTracker"
)

// Default task queue for research workers.
const DefaultTaskQueue = "research-tasks"
