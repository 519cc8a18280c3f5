// Package main provides the entry point for the treewalk CLI.
//
// treewalk walks the sidebar tree of a web workspace in a Chrome tab,
// opens every item once, and records each visit in a resumable checkpoint.
//
// Usage:
//
//	treewalk walk --start-url https://example.feishu.cn/wiki/...
//	treewalk history
//
// See --help for all available options.
package main

// main is the entry point for treewalk.
func main() {
	Execute()
}
