package tools

// builtinTools returns the fixed 14-tool catalogue.
func builtinTools() []*Tool {
	return []*Tool{
		listFilesTool(),
		readFileTool(),
		writeFileTool(),
		deleteFileTool(),
		searchTextTool(),
		globSearchTool(),
		createDirectoryTool(),
		deleteDirectoryTool(),
		moveFileTool(),
		copyFileTool(),
		shellExecTool(),
		webFetchTool(),
		webSearchTool(),
		todoWriteTool(),
	}
}
