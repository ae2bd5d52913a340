package projection

import (
	"context"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type call struct {
	Query  string
	Params map[string]interface{}
}

type MockDriver struct {
	mu      sync.Mutex
	Calls   []call
	Indexed int
	// Removed is returned as the "removed" column of every prune query.
	Removed int64
	// FailOn makes any query containing the substring fail.
	FailOn string
	Err    error
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call{Query: query, Params: params})
	if m.FailOn != "" && strings.Contains(query, m.FailOn) {
		return neo4j.EagerResult{}, m.Err
	}
	if strings.Contains(query, "AS removed") {
		return neo4j.EagerResult{
			Keys:    []string{"removed"},
			Records: []*neo4j.Record{{Keys: []string{"removed"}, Values: []any{m.Removed}}},
		}, nil
	}
	return neo4j.EagerResult{}, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error {
	m.Indexed++
	return nil
}

func (m *MockDriver) Close(ctx context.Context) error {
	return nil
}

func (m *MockDriver) callsFor(query string) []call {
	var out []call
	for _, c := range m.Calls {
		if c.Query == query {
			out = append(out, c)
		}
	}
	return out
}
