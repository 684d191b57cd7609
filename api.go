package shopcache

import (
	"context"
	"io"
	"time"

	c "github.com/unkn0wn-root/shopcache/codec"
	pr "github.com/unkn0wn-root/shopcache/provider"
)

// NewProductID is the placeholder id of the product the create form starts from.
// It is never fetched and never cached.
const NewProductID = "new"

// Gender values accepted by the backend.
const (
	GenderMen    = "men"
	GenderWomen  = "women"
	GenderKid    = "kid"
	GenderUnisex = "unisex"
)

type User struct {
	ID       string   `json:"id" cbor:"id" msgpack:"id"`
	Email    string   `json:"email" cbor:"email" msgpack:"email"`
	FullName string   `json:"fullName" cbor:"fullName" msgpack:"fullName"`
	IsActive bool     `json:"isActive" cbor:"isActive" msgpack:"isActive"`
	Roles    []string `json:"roles" cbor:"roles" msgpack:"roles"`
}

// AuthResponse is what login, register and check-status return.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Product is a catalog item. ID is stable across fetches; everything else
// may be superseded by a later write.
type Product struct {
	ID          string   `json:"id" cbor:"id" msgpack:"id"`
	Title       string   `json:"title" cbor:"title" msgpack:"title"`
	Price       float64  `json:"price" cbor:"price" msgpack:"price"`
	Description string   `json:"description" cbor:"description" msgpack:"description"`
	Slug        string   `json:"slug" cbor:"slug" msgpack:"slug"`
	Stock       int      `json:"stock" cbor:"stock" msgpack:"stock"`
	Sizes       []string `json:"sizes" cbor:"sizes" msgpack:"sizes"`
	Gender      string   `json:"gender" cbor:"gender" msgpack:"gender"`
	Tags        []string `json:"tags" cbor:"tags" msgpack:"tags"`
	Images      []string `json:"images" cbor:"images" msgpack:"images"`
	User        *User    `json:"user,omitempty" cbor:"user,omitempty" msgpack:"user,omitempty"`
}

// EmptyProduct returns the blank product behind NewProductID.
func EmptyProduct() Product {
	return Product{
		ID:     NewProductID,
		Gender: GenderMen,
		Sizes:  []string{},
		Tags:   []string{},
		Images: []string{},
	}
}

// Page is one listing result plus the normalized params that produced it.
type Page struct {
	Count    int       `json:"count" cbor:"count" msgpack:"count"`
	Pages    int       `json:"pages" cbor:"pages" msgpack:"pages"`
	Products []Product `json:"products" cbor:"products" msgpack:"products"`
	Params   Params    `json:"params" cbor:"params" msgpack:"params"`
}

// Asset is a raw image blob to upload before a product write.
type Asset struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Backend is the remote product API the cache reads through and writes to.
type Backend interface {
	ListProducts(ctx context.Context, p Params) (Page, error)
	GetProduct(ctx context.Context, idOrSlug string) (Product, error)
	CreateProduct(ctx context.Context, in ProductInput) (Product, error)
	UpdateProduct(ctx context.Context, id string, in ProductInput) (Product, error)
	// UploadImage stores one asset and returns the name the backend assigned.
	UploadImage(ctx context.Context, a Asset) (string, error)
}

// Options tune the cache.
// Only Namespace and Backend are required; others have sensible defaults.
type Options struct {
	// Required
	Namespace string // logical namespace, e.g. "shop", "admin"
	Backend   Backend

	Provider     pr.Provider      // nil => provider/memory (no TTL, no eviction)
	PageCodec    c.Codec[Page]    // nil => JSON
	ProductCodec c.Codec[Product] // nil => JSON
	Logger       Logger           // if nil, NopLogger is used
	Hooks        Hooks            // if nil, NopHooks is used

	// TTL bounds how long entries live in the provider; 0 => no expiry.
	// Set it for shared providers written by more than one process.
	TTL time.Duration

	// UploadConcurrency bounds parallel image uploads per write; 0 => unbounded.
	UploadConcurrency int
	// CoalesceMisses shares one backend call between concurrent misses on the
	// same key. Off by default: each miss fetches and the last writer wins.
	CoalesceMisses bool
}

func New(opts Options) (*Cache, error) {
	return newCache(opts)
}
