package anthropic

// BuildCachedSystemBlocks returns a single system block with a cache
// breakpoint. The summarizer sends the same field guide with every package
// so later requests in a run read it from the prompt cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "5m"},
		},
	}
}
