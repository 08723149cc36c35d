package domain

import "time"

// TopicConfig describes one discovery campaign: what to search for and
// how to classify what is found. Owned by an external collaborator and
// read-only to the pipeline; prompt text is configuration, not logic.
type TopicConfig struct {
	ID                      string
	Name                    string
	Keywords                []string
	Categories              []Category // primary category set
	SecondaryCategories     []Category // disjoint secondary set
	PromptTemplate          string
	SecondaryPromptTemplate string
	MaxPages                int
	ScanInterval            time.Duration // 0 = no scheduled searches
}
