package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"rag-chat/internal/domain/ports/adapter"
)

func init() {
	// bundled BPE ranks; no download at runtime
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

var _ adapter.TokenCounter = (*TiktokenCounter)(nil)

const fallbackEncoding = "cl100k_base"

// TiktokenCounter estimates prompt tokens. Models unknown to tiktoken
// (gemini, local models) are counted with cl100k_base.
type TiktokenCounter struct {
	mu      sync.Mutex
	byModel map[string]*tiktoken.Tiktoken
}

func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{byModel: make(map[string]*tiktoken.Tiktoken)}
}

func (c *TiktokenCounter) encoding(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.byModel[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil
		}
	}
	c.byModel[model] = enc
	return enc
}

// CountTokens follows the chat-format approximation: a fixed overhead per
// message plus its encoded role and content, plus reply priming.
func (c *TiktokenCounter) CountTokens(model string, messages []adapter.Message) int {
	if len(messages) == 0 {
		return 0
	}
	enc := c.encoding(model)
	if enc == nil {
		n := 0
		for _, m := range messages {
			n += len(m.Content) / 4
		}
		return n
	}
	n := 3
	for _, m := range messages {
		n += 3
		n += len(enc.Encode(m.Role, nil, nil))
		n += len(enc.Encode(m.Content, nil, nil))
	}
	return n
}
