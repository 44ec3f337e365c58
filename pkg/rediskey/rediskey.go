package rediskey

import "fmt"

const (
	AgentRunSignalPrefix = "openpaws:agent_run:signal"
	OAuthStatePrefix     = "openpaws:oauth:state"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildAgentRunSignalKey returns "openpaws:agent_run:signal:{runID}"
func BuildAgentRunSignalKey(runID string) string {
	return NamespaceKey(AgentRunSignalPrefix, runID)
}

// BuildOAuthStateKey returns "openpaws:oauth:state:{state}"
func BuildOAuthStateKey(state string) string {
	return NamespaceKey(OAuthStatePrefix, state)
}
