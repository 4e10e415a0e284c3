// Package browse holds the query state behind the catalog list: sort order,
// genre filter, search term and accumulated pages.
//
// The Controller never performs I/O. Each transition that needs data returns a
// Request tagged with a sequence number; the caller runs it (see Fetch) and
// hands the Response back to Apply, which drops anything that is no longer the
// latest request for its stream.
package browse

import (
	"context"
	"strings"

	"github.com/liamwears/reeldeck/internal/models"
)

// Status is the load state of the visible result list
type Status int

const (
	Idle Status = iota
	LoadingInitial
	LoadingMore
	Loaded
	Errored
)

func (s Status) String() string {
	switch s {
	case LoadingInitial:
		return "loading"
	case LoadingMore:
		return "loading more"
	case Loaded:
		return "loaded"
	case Errored:
		return "error"
	default:
		return "idle"
	}
}

// Loading reports whether a request is outstanding
func (s Status) Loading() bool {
	return s == LoadingInitial || s == LoadingMore
}

// Stream identifies an independent sequence of requests
type Stream int

const (
	StreamBrowse Stream = iota + 1
	StreamSearch
)

func (s Stream) String() string {
	if s == StreamSearch {
		return "search"
	}
	return "browse"
}

// Request describes a fetch the caller must perform
type Request struct {
	Seq    uint64
	Stream Stream
	Sort   models.SortOrder
	Genre  *int
	Term   string
	Page   int
}

// Append reports whether the result extends the current list
func (r Request) Append() bool {
	return r.Stream == StreamBrowse && r.Page > 1
}

// Response is the outcome of a Request
type Response struct {
	Seq    uint64
	Stream Stream
	Page   *models.MoviePage
	Err    error
}

// State is a snapshot of what the list view shows
type State struct {
	Sort      models.SortOrder
	Genre     *int
	Term      string
	Searching bool
	Page      int
	Results   []models.MovieSummary
	HasMore   bool
	Status    Status
	Err       error
}

// Catalog is the subset of the catalog client the controller's requests need
type Catalog interface {
	ListCategory(ctx context.Context, sort models.SortOrder, genre *int, page int) (*models.MoviePage, error)
	Search(ctx context.Context, query string, page int) (*models.MoviePage, error)
}

// Fetch runs req against catalog
func Fetch(ctx context.Context, catalog Catalog, req Request) Response {
	var (
		page *models.MoviePage
		err  error
	)
	if req.Stream == StreamSearch {
		page, err = catalog.Search(ctx, req.Term, req.Page)
	} else {
		page, err = catalog.ListCategory(ctx, req.Sort, req.Genre, req.Page)
	}
	return Response{Seq: req.Seq, Stream: req.Stream, Page: page, Err: err}
}

// results is one result list with its paging state
type results struct {
	page    int
	items   []models.MovieSummary
	ids     map[int]struct{}
	hasMore bool
	status  Status
	err     error
	// loaded is set once a first page has been applied for the current parameters
	loaded bool
}

func (r *results) reset(status Status) {
	*r = results{page: 1, status: status}
}

func (r *results) replace(items []models.MovieSummary) {
	r.items = nil
	r.ids = make(map[int]struct{}, len(items))
	r.append(items)
}

func (r *results) append(items []models.MovieSummary) {
	if r.ids == nil {
		r.ids = make(map[int]struct{}, len(items))
	}
	for _, m := range items {
		if _, dup := r.ids[m.ID]; dup {
			continue
		}
		r.ids[m.ID] = struct{}{}
		r.items = append(r.items, m)
	}
}

// Controller owns the query state for one list view
type Controller struct {
	sort  models.SortOrder
	genre *int
	term  string

	browse results
	search results
	// browseStale is set when sort or genre changed while a search hid the browse list
	browseStale bool

	seq uint64
	// awaiting holds the only sequence number each stream will accept; 0 accepts none
	awaiting map[Stream]uint64
}

// New creates an idle controller browsing by sort
func New(sort models.SortOrder) *Controller {
	if !sort.IsValid() {
		sort = models.SortPopularity
	}
	c := &Controller{
		sort:     sort,
		awaiting: make(map[Stream]uint64, 2),
	}
	c.browse.reset(Idle)
	c.search.reset(Idle)
	return c
}

func (c *Controller) searching() bool {
	return c.term != ""
}

func (c *Controller) issue(stream Stream, page int) Request {
	c.seq++
	c.awaiting[stream] = c.seq

	req := Request{Seq: c.seq, Stream: stream, Page: page}
	if stream == StreamSearch {
		req.Term = c.term
	} else {
		req.Sort = c.sort
		req.Genre = copyGenre(c.genre)
	}
	return req
}

func (c *Controller) reloadBrowse() Request {
	c.browseStale = false
	c.browse.reset(LoadingInitial)
	return c.issue(StreamBrowse, 1)
}

// browseChanged handles a sort or genre change
func (c *Controller) browseChanged() (Request, bool) {
	if c.searching() {
		c.awaiting[StreamBrowse] = 0
		c.browseStale = true
		return Request{}, false
	}
	return c.reloadBrowse(), true
}

// Start loads the first browse page
func (c *Controller) Start() (Request, bool) {
	if c.searching() {
		return Request{}, false
	}
	return c.reloadBrowse(), true
}

// SetSortOrder switches the category. Setting the current order is a no-op.
func (c *Controller) SetSortOrder(sort models.SortOrder) (Request, bool) {
	if !sort.IsValid() || sort == c.sort {
		return Request{}, false
	}
	c.sort = sort
	return c.browseChanged()
}

// ToggleGenre makes id the active genre, or clears the filter when id is
// already active
func (c *Controller) ToggleGenre(id int) (Request, bool) {
	if c.genre != nil && *c.genre == id {
		c.genre = nil
	} else {
		c.genre = &id
	}
	return c.browseChanged()
}

// NextPage requests the following browse page. It only applies to a loaded
// browse list with pages left.
func (c *Controller) NextPage() (Request, bool) {
	if c.searching() || c.browse.status != Loaded || !c.browse.hasMore {
		return Request{}, false
	}
	c.browse.page++
	c.browse.status = LoadingMore
	c.browse.err = nil
	return c.issue(StreamBrowse, c.browse.page), true
}

// Search replaces the list with results for term. A blank term clears the search.
func (c *Controller) Search(term string) (Request, bool) {
	term = strings.TrimSpace(term)
	if term == "" {
		return c.ClearSearch()
	}

	if !c.searching() {
		c.suspendBrowse()
	}
	c.term = term
	c.search.reset(LoadingInitial)
	return c.issue(StreamSearch, 1), true
}

// suspendBrowse drops any in-flight browse request so the browse list can be
// restored as it was once the search is cleared
func (c *Controller) suspendBrowse() {
	c.awaiting[StreamBrowse] = 0
	if c.browse.status == LoadingMore {
		c.browse.page--
		c.browse.status = Loaded
	}
	if !c.browse.loaded {
		c.browseStale = true
	}
}

// ClearSearch returns to category browsing. The browse list comes back exactly
// as it was unless it has to be reloaded, in which case a request is returned.
func (c *Controller) ClearSearch() (Request, bool) {
	if !c.searching() {
		return Request{}, false
	}
	c.term = ""
	c.awaiting[StreamSearch] = 0
	c.search.reset(Idle)

	if c.browseStale || !c.browse.loaded {
		return c.reloadBrowse(), true
	}
	return Request{}, false
}

// Retry repeats the request that failed on the visible list
func (c *Controller) Retry() (Request, bool) {
	if c.searching() {
		if c.search.status != Errored {
			return Request{}, false
		}
		c.search.reset(LoadingInitial)
		return c.issue(StreamSearch, 1), true
	}

	switch {
	case c.browse.status == Idle:
		return c.reloadBrowse(), true
	case c.browse.status != Errored:
		return Request{}, false
	case c.browse.loaded:
		c.browse.page++
		c.browse.status = LoadingMore
		c.browse.err = nil
		return c.issue(StreamBrowse, c.browse.page), true
	default:
		return c.reloadBrowse(), true
	}
}

// Apply folds resp into the state. It returns false and changes nothing when
// resp is not the latest request issued for its stream.
func (c *Controller) Apply(resp Response) bool {
	if resp.Seq == 0 || c.awaiting[resp.Stream] != resp.Seq {
		return false
	}
	c.awaiting[resp.Stream] = 0

	if resp.Err == nil && resp.Page == nil {
		resp.Page = &models.MoviePage{}
	}

	if resp.Stream == StreamSearch {
		c.applySearch(resp)
	} else {
		c.applyBrowse(resp)
	}
	return true
}

func (c *Controller) applyBrowse(resp Response) {
	r := &c.browse
	if resp.Err != nil {
		r.err = resp.Err
		if r.status == LoadingMore {
			r.page--
			r.status = Errored
			return
		}
		r.items = nil
		r.ids = nil
		r.hasMore = false
		r.loaded = false
		r.status = Errored
		return
	}

	if r.status == LoadingMore {
		r.append(resp.Page.Items)
	} else {
		r.replace(resp.Page.Items)
		r.loaded = true
	}
	r.hasMore = r.page < resp.Page.TotalPages
	r.status = Loaded
	r.err = nil
}

func (c *Controller) applySearch(resp Response) {
	r := &c.search
	if resp.Err != nil {
		r.items = nil
		r.ids = nil
		r.hasMore = false
		r.status = Errored
		r.err = resp.Err
		return
	}

	// search is never paginated
	r.replace(resp.Page.Items)
	r.hasMore = false
	r.loaded = true
	r.status = Loaded
	r.err = nil
}

// State returns a snapshot of the visible list
func (c *Controller) State() State {
	r := c.browse
	if c.searching() {
		r = c.search
	}
	items := make([]models.MovieSummary, len(r.items))
	copy(items, r.items)

	return State{
		Sort:      c.sort,
		Genre:     copyGenre(c.genre),
		Term:      c.term,
		Searching: c.searching(),
		Page:      r.page,
		Results:   items,
		HasMore:   r.hasMore,
		Status:    r.status,
		Err:       r.err,
	}
}

func copyGenre(g *int) *int {
	if g == nil {
		return nil
	}
	v := *g
	return &v
}
