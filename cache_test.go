package shopcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/shopcache/internal/wire"
	pr "github.com/unkn0wn-root/shopcache/provider"
	"github.com/unkn0wn-root/shopcache/provider/memory"
)

type fakeBackend struct {
	mu sync.Mutex

	pages    map[string]Page    // by BuildKey
	products map[string]Product // by id or slug

	listErr   error
	getErr    error
	writeErr  error
	uploadErr map[string]error // by asset name

	listCalls   int
	getCalls    int
	uploadCalls int
	uploaded    []string
	created     []ProductInput
	updated     []ProductInput
	nextID      int

	onList func() // runs outside the lock before answering
}

var _ Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pages:     make(map[string]Page),
		products:  make(map[string]Product),
		uploadErr: make(map[string]error),
		nextID:    100,
	}
}

func (b *fakeBackend) ListProducts(_ context.Context, p Params) (Page, error) {
	if b.onList != nil {
		b.onList()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls++
	if b.listErr != nil {
		return Page{}, b.listErr
	}
	pg := b.pages[BuildKey(p)]
	pg.Products = append([]Product(nil), pg.Products...)
	return pg, nil
}

func (b *fakeBackend) GetProduct(_ context.Context, idOrSlug string) (Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.getCalls++
	if b.getErr != nil {
		return Product{}, b.getErr
	}
	p, ok := b.products[idOrSlug]
	if !ok {
		return Product{}, fmt.Errorf("product %s not found", idOrSlug)
	}
	return p, nil
}

func (b *fakeBackend) CreateProduct(_ context.Context, in ProductInput) (Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created = append(b.created, in)
	if b.writeErr != nil {
		return Product{}, b.writeErr
	}
	b.nextID++
	return productFrom(fmt.Sprint(b.nextID), in), nil
}

func (b *fakeBackend) UpdateProduct(_ context.Context, id string, in ProductInput) (Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updated = append(b.updated, in)
	if b.writeErr != nil {
		return Product{}, b.writeErr
	}
	return productFrom(id, in), nil
}

func (b *fakeBackend) UploadImage(_ context.Context, a Asset) (string, error) {
	if a.Body != nil {
		_, _ = io.Copy(io.Discard, a.Body)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploadCalls++
	if err := b.uploadErr[a.Name]; err != nil {
		return "", err
	}
	name := strings.TrimSuffix(a.Name, ".src") + ".png"
	b.uploaded = append(b.uploaded, name)
	return name, nil
}

func (b *fakeBackend) calls() (list, get, upload, create, update int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listCalls, b.getCalls, b.uploadCalls, len(b.created), len(b.updated)
}

func productFrom(id string, in ProductInput) Product {
	return Product{
		ID:          id,
		Title:       in.Title,
		Price:       in.Price,
		Description: in.Description,
		Slug:        in.Slug,
		Stock:       in.Stock,
		Sizes:       in.Sizes,
		Gender:      in.Gender,
		Tags:        in.Tags,
		Images:      in.Images,
	}
}

func prod(id, title, gender string) Product {
	return Product{ID: id, Title: title, Slug: "slug-" + id, Gender: gender, Price: 10, Stock: 1, Images: []string{id + ".jpg"}}
}

func validInput(title string) ProductInput {
	return ProductInput{
		Title:       title,
		Slug:        strings.ReplaceAll(strings.ToLower(title), " ", "-"),
		Description: "a " + title,
		Price:       25,
		Stock:       3,
		Sizes:       []string{"M", "L"},
		Gender:      GenderMen,
		Tags:        []string{"shirt"},
	}
}

func newTestCache(t *testing.T, b Backend, mp pr.Provider, optsOpt func(*Options)) *Cache {
	t.Helper()
	opts := Options{
		Namespace: "shop",
		Backend:   b,
		Provider:  mp,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(context.Background()) })
	return cc
}

// ==============================
// Construction
// ==============================

func TestNewRequiresBackendAndNamespace(t *testing.T) {
	if _, err := New(Options{Namespace: "shop"}); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("want ErrNoBackend, got %v", err)
	}
	if _, err := New(Options{Backend: newFakeBackend()}); err == nil {
		t.Fatalf("expected namespace error")
	}
	if _, err := New(Options{Namespace: "shop", Backend: newFakeBackend(), UploadConcurrency: -1}); err == nil {
		t.Fatalf("expected upload concurrency error")
	}
}

// ==============================
// Read path
// ==============================

// TestGetPageReadThrough: empty cache, first call fetches and stores under
// "9-0-", second call is served without a backend call.
func TestGetPageReadThrough(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.pages["9-0-"] = Page{Count: 3, Pages: 1, Products: []Product{
		prod("1", "A", GenderMen), prod("2", "B", GenderWomen), prod("3", "C", GenderKid),
	}}
	mp := memory.New()
	cc := newTestCache(t, b, mp, nil)

	first, err := cc.GetPage(ctx, Params{Limit: 9, Offset: 0, Gender: ""})
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if len(first.Products) != 3 {
		t.Fatalf("want 3 products, got %d", len(first.Products))
	}
	if s := cc.Stats(); s.Pages != 1 {
		t.Fatalf("want one cached page, got %+v", s)
	}
	if _, ok, _ := mp.Get(ctx, "page:shop:9-0-"); !ok {
		t.Fatalf("page not stored under derived key")
	}

	second, err := cc.GetPage(ctx, Params{}) // defaults normalize to 9/0/""
	if err != nil {
		t.Fatalf("GetPage (cached): %v", err)
	}
	if list, _, _, _, _ := b.calls(); list != 1 {
		t.Fatalf("want 1 backend call, got %d", list)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached page differs:\n first=%+v\nsecond=%+v", first, second)
	}
	if second.Params != (Params{Limit: 9}) {
		t.Fatalf("page params not normalized: %+v", second.Params)
	}
}

func TestGetPageFailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	boom := errors.New("backend down")
	b.listErr = boom
	cc := newTestCache(t, b, nil, nil)

	if _, err := cc.GetPage(ctx, Params{Gender: "men"}); err != boom {
		t.Fatalf("error must be returned unmodified, got %v", err)
	}
	if s := cc.Stats(); s.Pages != 0 {
		t.Fatalf("failed fetch poisoned the cache: %+v", s)
	}

	b.mu.Lock()
	b.listErr = nil
	b.mu.Unlock()
	if _, err := cc.GetPage(ctx, Params{Gender: "men"}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if list, _, _, _, _ := b.calls(); list != 2 {
		t.Fatalf("retry must hit the backend again, calls=%d", list)
	}
}

func TestGetProductPlaceholderNeverFetched(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	cc := newTestCache(t, b, nil, nil)

	p, err := cc.GetProduct(ctx, NewProductID)
	if err != nil {
		t.Fatalf("GetProduct(new): %v", err)
	}
	if !reflect.DeepEqual(p, EmptyProduct()) {
		t.Fatalf("want empty product, got %+v", p)
	}
	if _, get, _, _, _ := b.calls(); get != 0 {
		t.Fatalf("placeholder must not reach the backend")
	}
	if s := cc.Stats(); s.Products != 0 {
		t.Fatalf("placeholder must not be cached: %+v", s)
	}
	if _, err := cc.GetProduct(ctx, ""); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("want ErrEmptyID, got %v", err)
	}
}

func TestGetProductByIDAndSlug(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	p := prod("7", "Tee", GenderMen)
	b.products["7"] = p
	b.products[p.Slug] = p
	cc := newTestCache(t, b, nil, nil)

	for i := 0; i < 2; i++ {
		if got, err := cc.GetProduct(ctx, "7"); err != nil || got.ID != "7" {
			t.Fatalf("GetProduct(id): %+v %v", got, err)
		}
		if got, err := cc.GetProduct(ctx, p.Slug); err != nil || got.ID != "7" {
			t.Fatalf("GetProduct(slug): %+v %v", got, err)
		}
	}
	if _, get, _, _, _ := b.calls(); get != 2 {
		t.Fatalf("want one fetch per lookup key, got %d", get)
	}
	if s := cc.Stats(); s.Products != 2 {
		t.Fatalf("want 2 lookup entries, got %+v", s)
	}
}

// ==============================
// Write path
// ==============================

func TestCreateProductUploadsThenWrites(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	cc := newTestCache(t, b, nil, nil)

	in := validInput("shirt")
	fileA := Asset{Name: "img1.src", ContentType: "image/png", Body: bytes.NewReader([]byte("png"))}

	p, err := cc.CreateProduct(ctx, in, []Asset{fileA})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if len(b.created) != 1 || !reflect.DeepEqual(b.created[0].Images, []string{"img1.png"}) {
		t.Fatalf("write payload images = %v, want [img1.png]", b.created)
	}
	if p.ID == NewProductID || p.ID == "" {
		t.Fatalf("backend id not returned: %q", p.ID)
	}

	_, get, _, _, _ := b.calls()
	got, err := cc.GetProduct(ctx, p.ID)
	if err != nil || !reflect.DeepEqual(got, p) {
		t.Fatalf("created product not cached under new id: %+v %v", got, err)
	}
	if _, get2, _, _, _ := b.calls(); get2 != get {
		t.Fatalf("created product should be served from cache")
	}
	cc.mu.Lock()
	_, stale := cc.lookups[NewProductID]
	cc.mu.Unlock()
	if stale {
		t.Fatalf("placeholder id must never be cached")
	}
}

func TestWriteKeepsExistingImagesFirst(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	cc := newTestCache(t, b, nil, nil)

	in := validInput("hoodie")
	in.Images = []string{"old.jpg"}
	assets := []Asset{{Name: "a.src"}, {Name: "b.src"}, {Name: "c.src"}}

	if _, err := cc.UpdateProduct(ctx, "42", in, assets); err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	want := []string{"old.jpg", "a.png", "b.png", "c.png"}
	if !reflect.DeepEqual(b.updated[0].Images, want) {
		t.Fatalf("images = %v, want %v", b.updated[0].Images, want)
	}
	if !reflect.DeepEqual(in.Images, []string{"old.jpg"}) {
		t.Fatalf("caller input mutated: %v", in.Images)
	}
}

// TestUploadFailureAbortsWrite: the second of two uploads fails; the write is
// never issued, the cache is unchanged and the first upload stays uploaded.
func TestUploadFailureAbortsWrite(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.pages["9-0-"] = Page{Products: []Product{prod("1", "A", GenderMen)}}
	uploadErr := errors.New("413 payload too large")
	b.uploadErr["second.src"] = uploadErr
	cc := newTestCache(t, b, nil, nil)

	if _, err := cc.GetPage(ctx, Params{}); err != nil {
		t.Fatal(err)
	}
	before := cc.Stats()

	_, err := cc.CreateProduct(ctx, validInput("shirt"), []Asset{{Name: "first.src"}, {Name: "second.src"}})
	if err != uploadErr {
		t.Fatalf("upload error must surface unmodified, got %v", err)
	}
	_, _, uploads, creates, _ := b.calls()
	if uploads != 2 || creates != 0 {
		t.Fatalf("uploads=%d creates=%d, want 2/0", uploads, creates)
	}
	if !reflect.DeepEqual(b.uploaded, []string{"first.png"}) {
		t.Fatalf("first upload should stand (no rollback), got %v", b.uploaded)
	}
	if after := cc.Stats(); after != before {
		t.Fatalf("cache modified on failure: before=%+v after=%+v", before, after)
	}
}

func TestWriteFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.pages["9-0-"] = Page{Products: []Product{prod("5", "Old", GenderMen)}}
	writeErr := errors.New("500")
	b.writeErr = writeErr
	mp := memory.New()
	cc := newTestCache(t, b, mp, nil)

	if _, err := cc.GetPage(ctx, Params{}); err != nil {
		t.Fatal(err)
	}
	raw, _, _ := mp.Get(ctx, "page:shop:9-0-")

	if _, err := cc.UpdateProduct(ctx, "5", validInput("new title"), []Asset{{Name: "x.src"}}); err != writeErr {
		t.Fatalf("want write error unmodified, got %v", err)
	}
	raw2, _, _ := mp.Get(ctx, "page:shop:9-0-")
	if !bytes.Equal(raw, raw2) {
		t.Fatalf("page rewritten after failed write")
	}
	if _, _, uploads, _, _ := b.calls(); uploads != 1 {
		t.Fatalf("upload should have happened before the failed write")
	}
}

func TestValidationFailsBeforeNetwork(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	cc := newTestCache(t, b, nil, nil)

	in := validInput("shirt")
	in.Price = -1
	in.Gender = "robots"
	_, err := cc.CreateProduct(ctx, in, []Asset{{Name: "a.src"}})
	if !errors.Is(err, ErrInvalidProduct) {
		t.Fatalf("want ErrInvalidProduct, got %v", err)
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) != 2 {
		t.Fatalf("want 2 field errors, got %v", err)
	}
	if _, _, uploads, creates, _ := b.calls(); uploads != 0 || creates != 0 {
		t.Fatalf("validation failure reached the network: uploads=%d creates=%d", uploads, creates)
	}
}

func TestUpdatePlaceholderRejected(t *testing.T) {
	cc := newTestCache(t, newFakeBackend(), nil, nil)
	if _, err := cc.UpdateProduct(context.Background(), NewProductID, validInput("x"), nil); !errors.Is(err, ErrPlaceholderID) {
		t.Fatalf("want ErrPlaceholderID, got %v", err)
	}
}

func TestSaveDispatches(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	cc := newTestCache(t, b, nil, nil)

	created, err := cc.Save(ctx, NewProductID, validInput("cap"), nil)
	if err != nil {
		t.Fatalf("Save(new): %v", err)
	}
	if _, err := cc.Save(ctx, created.ID, validInput("cap two"), nil); err != nil {
		t.Fatalf("Save(existing): %v", err)
	}
	if _, _, _, creates, updates := b.calls(); creates != 1 || updates != 1 {
		t.Fatalf("creates=%d updates=%d, want 1/1", creates, updates)
	}
}

// ==============================
// Invalidation sweep
// ==============================

// TestUpdatePatchesCachedPages: pages holding id 5 carry the new attributes at
// the same index; pages without id 5 keep their exact bytes.
func TestUpdatePatchesCachedPages(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.pages["9-0-"] = Page{Products: []Product{prod("1", "A", GenderMen), prod("5", "Old", GenderMen), prod("7", "C", GenderMen)}}
	b.pages["9-0-men"] = Page{Products: []Product{prod("5", "Old", GenderMen)}}
	b.pages["9-0-women"] = Page{Products: []Product{prod("2", "W", GenderWomen), prod("3", "X", GenderWomen)}}
	mp := memory.New()
	cc := newTestCache(t, b, mp, nil)

	for _, g := range []string{"", "men", "women"} {
		if _, err := cc.GetPage(ctx, Params{Gender: g}); err != nil {
			t.Fatal(err)
		}
	}
	womenRaw, _, _ := mp.Get(ctx, "page:shop:9-0-women")

	in := validInput("New")
	in.Images = []string{"5.jpg"}
	updated, err := cc.UpdateProduct(ctx, "5", in, nil)
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}

	all, _ := cc.GetPage(ctx, Params{})
	if !reflect.DeepEqual(all.Products[1], updated) {
		t.Fatalf("index 1 not patched: %+v", all.Products[1])
	}
	if all.Products[0].ID != "1" || all.Products[2].ID != "7" {
		t.Fatalf("order changed: %+v", all.Products)
	}
	men, _ := cc.GetPage(ctx, Params{Gender: "men"})
	if men.Products[0].Title != "New" {
		t.Fatalf("men page not patched: %+v", men.Products[0])
	}
	womenRaw2, _, _ := mp.Get(ctx, "page:shop:9-0-women")
	if !bytes.Equal(womenRaw, womenRaw2) {
		t.Fatalf("page without id 5 was rewritten")
	}
	if list, _, _, _, _ := b.calls(); list != 3 {
		t.Fatalf("patched pages must be served from cache, list calls=%d", list)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.pages["9-0-"] = Page{Products: []Product{prod("1", "A", GenderMen), prod("5", "Old", GenderMen)}}
	mp := memory.New()
	cc := newTestCache(t, b, mp, nil)
	if _, err := cc.GetPage(ctx, Params{}); err != nil {
		t.Fatal(err)
	}

	p := prod("5", "Patched", GenderMen)
	cc.Reconcile(ctx, p)
	once, _, _ := mp.Get(ctx, "page:shop:9-0-")
	onceProduct, _, _ := mp.Get(ctx, "product:shop:5")
	cc.Reconcile(ctx, p)
	twice, _, _ := mp.Get(ctx, "page:shop:9-0-")
	twiceProduct, _, _ := mp.Get(ctx, "product:shop:5")

	if !bytes.Equal(once, twice) || !bytes.Equal(onceProduct, twiceProduct) {
		t.Fatalf("second reconcile changed state")
	}
	if s := cc.Stats(); s.Pages != 1 || s.Products != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

// TestReconcileKeepsPageOutsideFilter: a product moved from men to women stays
// on the cached men page, patched in place.
func TestReconcileKeepsPageOutsideFilter(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.pages["9-0-men"] = Page{Products: []Product{prod("5", "Tee", GenderMen)}}
	cc := newTestCache(t, b, nil, nil)
	if _, err := cc.GetPage(ctx, Params{Gender: "men"}); err != nil {
		t.Fatal(err)
	}

	cc.Reconcile(ctx, prod("5", "Tee", GenderWomen))

	men, _ := cc.GetPage(ctx, Params{Gender: "men"})
	if len(men.Products) != 1 || men.Products[0].Gender != GenderWomen {
		t.Fatalf("page should be kept and patched, got %+v", men.Products)
	}
}

func TestReconcileRefreshesSlugLookup(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	p := prod("9", "Jacket", GenderMen)
	b.products[p.Slug] = p
	cc := newTestCache(t, b, nil, nil)
	if _, err := cc.GetProduct(ctx, p.Slug); err != nil {
		t.Fatal(err)
	}

	p.Title = "Jacket v2"
	cc.Reconcile(ctx, p)

	got, err := cc.GetProduct(ctx, p.Slug)
	if err != nil || got.Title != "Jacket v2" {
		t.Fatalf("slug entry not refreshed: %+v %v", got, err)
	}
	if _, get, _, _, _ := b.calls(); get != 1 {
		t.Fatalf("slug lookup should stay cached, get calls=%d", get)
	}
}

func TestReconcileDropsEvictedPages(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.pages["9-0-"] = Page{Products: []Product{prod("5", "Old", GenderMen)}}
	mp := memory.New()
	cc := newTestCache(t, b, mp, nil)
	if _, err := cc.GetPage(ctx, Params{}); err != nil {
		t.Fatal(err)
	}

	_ = mp.Del(ctx, "page:shop:9-0-") // provider lost it
	cc.Reconcile(ctx, prod("5", "New", GenderMen))

	if s := cc.Stats(); s.Pages != 0 {
		t.Fatalf("evicted page still indexed: %+v", s)
	}
}

// ==============================
// Self-heal, lifecycle
// ==============================

func TestSelfHealOnCorruptPage(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.pages["9-0-"] = Page{Products: []Product{prod("1", "A", GenderMen)}}
	mp := memory.New()
	cc := newTestCache(t, b, mp, nil)

	// foreign bytes under our key
	if _, err := mp.Set(ctx, "page:shop:9-0-", []byte("not-wire-format"), 1, 0); err != nil {
		t.Fatal(err)
	}
	pg, err := cc.GetPage(ctx, Params{})
	if err != nil || len(pg.Products) != 1 {
		t.Fatalf("GetPage after corrupt entry: %+v %v", pg, err)
	}
	raw, ok, _ := mp.Get(ctx, "page:shop:9-0-")
	if !ok {
		t.Fatalf("refetched page not stored")
	}
	if _, err := wire.Decode(wire.KindPage, raw); err != nil {
		t.Fatalf("stored page is not framed: %v", err)
	}

	// valid frame, undecodable payload
	if _, err := mp.Set(ctx, "page:shop:9-0-", wire.Encode(wire.KindPage, []byte("{")), 1, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := cc.GetPage(ctx, Params{}); err != nil {
		t.Fatal(err)
	}
	if list, _, _, _, _ := b.calls(); list != 2 {
		t.Fatalf("undecodable entry should be a miss, list calls=%d", list)
	}
}

func TestClearDropsEverything(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.pages["9-0-"] = Page{Products: []Product{prod("1", "A", GenderMen)}}
	b.products["1"] = prod("1", "A", GenderMen)
	mp := memory.New()
	cc := newTestCache(t, b, mp, nil)

	_, _ = cc.GetPage(ctx, Params{})
	_, _ = cc.GetProduct(ctx, "1")
	cc.Clear(ctx)

	if s := cc.Stats(); s != (Stats{}) {
		t.Fatalf("stats after Clear: %+v", s)
	}
	if mp.Len() != 0 {
		t.Fatalf("provider still holds %d entries", mp.Len())
	}
	_, _ = cc.GetPage(ctx, Params{})
	if list, _, _, _, _ := b.calls(); list != 2 {
		t.Fatalf("Clear must force a refetch")
	}
}

// ==============================
// Concurrency
// ==============================

// TestConcurrentMissesNotDeduplicated: two concurrent misses on one key both
// reach the backend.
func TestConcurrentMissesNotDeduplicated(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.pages["9-0-"] = Page{Products: []Product{prod("1", "A", GenderMen)}}

	var arrived sync.WaitGroup
	arrived.Add(2)
	release := make(chan struct{})
	go func() {
		arrived.Wait()
		close(release)
	}()
	b.onList = func() {
		arrived.Done()
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	}
	cc := newTestCache(t, b, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cc.GetPage(ctx, Params{}); err != nil {
				t.Errorf("GetPage: %v", err)
			}
		}()
	}
	wg.Wait()

	if list, _, _, _, _ := b.calls(); list != 2 {
		t.Fatalf("want 2 backend calls, got %d", list)
	}
	if s := cc.Stats(); s.Pages != 1 {
		t.Fatalf("want one page entry, got %+v", s)
	}
}

func TestCoalesceMissesSharesFetch(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.pages["9-0-"] = Page{Products: []Product{prod("1", "A", GenderMen)}}
	release := make(chan struct{})
	b.onList = func() { <-release }
	cc := newTestCache(t, b, nil, func(o *Options) { o.CoalesceMisses = true })

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cc.GetPage(ctx, Params{}); err != nil {
				t.Errorf("GetPage: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond) // let all four miss
	close(release)
	wg.Wait()

	if list, _, _, _, _ := b.calls(); list != 1 {
		t.Fatalf("want 1 shared backend call, got %d", list)
	}
}

func TestUploadConcurrencyLimit(t *testing.T) {
	ctx := context.Background()
	lb := &limitBackend{fakeBackend: newFakeBackend()}
	cc := newTestCache(t, lb, nil, func(o *Options) { o.UploadConcurrency = 2 })

	assets := make([]Asset, 6)
	for i := range assets {
		assets[i] = Asset{Name: fmt.Sprintf("f%d.src", i)}
	}
	names, err := cc.UploadImages(ctx, assets)
	if err != nil {
		t.Fatalf("UploadImages: %v", err)
	}
	for i, n := range names {
		if n != fmt.Sprintf("f%d.png", i) {
			t.Fatalf("names out of asset order: %v", names)
		}
	}
	if lb.max > 2 {
		t.Fatalf("saw %d concurrent uploads, limit 2", lb.max)
	}
}

type limitBackend struct {
	*fakeBackend
	mu       sync.Mutex
	inFlight int
	max      int
}

func (l *limitBackend) UploadImage(ctx context.Context, a Asset) (string, error) {
	l.mu.Lock()
	l.inFlight++
	if l.inFlight > l.max {
		l.max = l.inFlight
	}
	l.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	defer func() {
		l.mu.Lock()
		l.inFlight--
		l.mu.Unlock()
	}()
	return l.fakeBackend.UploadImage(ctx, a)
}
