package prompts

func registerDefaults(registry *PromptRegistry) {
	registry.Register(&Prompt{
		ID:      IDSystem,
		Version: PromptV1,
		Content: `You are a pair programmer. Your partner writes the tests; you write the production code that makes them pass.

Rules:
- Never modify test files. They are the specification.
- Return every file you change in full, never a diff or an excerpt.
- Start each file with a line "File: <path relative to the project root>" followed by one fenced code block holding the whole file.
- Keep the existing package layout and build configuration unless a test requires otherwise.
- Do not explain your changes outside the code blocks.`,
		Description: "System prompt for the test-driven pairing loop",
	})

	registry.Register(&Prompt{
		ID:      IDPromptTemplate,
		Version: PromptV1,
		Content: `The tests below are failing. Change the production code so that the build succeeds and every test passes.

Output of the last build and test run:
{testOutput}

Build file:
{buildFileContent}

Project files:
{filesContent}`,
		Description: "Template used while the build or tests are failing",
	})

	registry.Register(&Prompt{
		ID:      IDNoIssue,
		Version: PromptV1,
		Content: `The build is green. Improve the production code following the hints below without breaking any test.

Build file:
{buildFileContent}

Project files:
{filesContent}`,
		Description: "Template used when only user hints drive the change",
	})
}
