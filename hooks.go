package shopcache

// Entry kinds reported to Hooks.
const (
	KindPage    = "page"
	KindProduct = "product"
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A read was served from the provider. kind ∈ {"page", "product"}
	CacheHit(kind, key string)
	// A read missed and went to the backend.
	CacheMiss(kind, key string)
	// The backend call behind a miss failed; nothing was stored.
	FetchFailed(kind, key string, err error)

	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "value_decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// A successful write patched n cached pages.
	PagesPatched(productID string, n int)

	// Image upload i of a create/update batch failed.
	UploadFailed(index int, name string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CacheHit(string, string)           {}
func (NopHooks) CacheMiss(string, string)          {}
func (NopHooks) FetchFailed(string, string, error) {}
func (NopHooks) SelfHeal(string, string)           {}
func (NopHooks) ProviderSetRejected(string)        {}
func (NopHooks) PagesPatched(string, int)          {}
func (NopHooks) UploadFailed(int, string, error)   {}
