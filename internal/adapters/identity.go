package adapters

import (
	"context"
	"sync"

	"perfeval-api/internal/shared"

	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// STSAPI is the slice of the STS client the identity cache needs.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// IdentityCache resolves the caller's AWS account ID once per process.
// Concurrent first callers share a single in-flight STS lookup; after the
// first success the value is served from memory for the process lifetime.
// A failed lookup is reported to the caller, which degrades to the plain
// model identifier instead of an account-qualified ARN.
type IdentityCache struct {
	Log *zap.SugaredLogger
	sts STSAPI

	sf      singleflight.Group
	mu      sync.RWMutex
	account string
}

func NewIdentityCache(log *zap.SugaredLogger, client STSAPI) *IdentityCache {
	return &IdentityCache{Log: log, sts: client}
}

// AccountID returns the cached account ID, performing the remote lookup
// on first use.
func (c *IdentityCache) AccountID(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.account != "" {
		defer c.mu.RUnlock()
		return c.account, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.sf.Do("account", func() (any, error) {
		out, err := c.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return "", err
		}
		account := shared.DerefString(out.Account)
		c.mu.Lock()
		c.account = account
		c.mu.Unlock()
		c.Log.Infow("Resolved caller identity", "account", account)
		return account, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
