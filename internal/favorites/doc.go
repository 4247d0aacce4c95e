// Package favorites implements the local favorites document: four maps of
// saved items keyed by plugin and item id, merged last-writer-wins per map
// so concurrent replicas converge.
package favorites

// Kind names one of the item maps in a Doc.
type Kind string

const (
	KindInstances   Kind = "instances"
	KindPosts       Kind = "posts"
	KindComments    Kind = "comments"
	KindCommunities Kind = "communities"
)

// Kinds lists every item map, in document order.
var Kinds = []Kind{KindInstances, KindPosts, KindComments, KindCommunities}

// Key builds the composite map key for one item. Items from different
// plugins never collide even when their platform ids do.
func Key(pluginID, itemID string) string {
	return pluginID + ":" + itemID
}

// Doc is the favorites document. Each map goes from composite key to the
// sanitized item as it was saved.
type Doc struct {
	Instances   map[string]map[string]any `json:"instances"`
	Posts       map[string]map[string]any `json:"posts"`
	Comments    map[string]map[string]any `json:"comments"`
	Communities map[string]map[string]any `json:"communities"`
}

// NewDoc returns an empty document with every map allocated.
func NewDoc() *Doc {
	return &Doc{
		Instances:   make(map[string]map[string]any),
		Posts:       make(map[string]map[string]any),
		Comments:    make(map[string]map[string]any),
		Communities: make(map[string]map[string]any),
	}
}

// Map returns the item map for a kind. Unknown kinds return nil.
func (d *Doc) Map(kind Kind) map[string]map[string]any {
	switch kind {
	case KindInstances:
		return d.Instances
	case KindPosts:
		return d.Posts
	case KindComments:
		return d.Comments
	case KindCommunities:
		return d.Communities
	default:
		return nil
	}
}

// normalize allocates any map a decoded document left nil.
func (d *Doc) normalize() {
	if d.Instances == nil {
		d.Instances = make(map[string]map[string]any)
	}
	if d.Posts == nil {
		d.Posts = make(map[string]map[string]any)
	}
	if d.Comments == nil {
		d.Comments = make(map[string]map[string]any)
	}
	if d.Communities == nil {
		d.Communities = make(map[string]map[string]any)
	}
}

// Clone deep-copies the document one item map level down. Item values are
// shared; callers treat stored items as immutable.
func (d *Doc) Clone() *Doc {
	out := NewDoc()
	for _, kind := range Kinds {
		src, dst := d.Map(kind), out.Map(kind)
		for k, v := range src {
			dst[k] = v
		}
	}
	return out
}

// Merge folds remote into d map by map. On key conflict the remote item
// wins, matching how synced replicas reconcile.
func (d *Doc) Merge(remote *Doc) {
	if remote == nil {
		return
	}
	remote.normalize()
	for _, kind := range Kinds {
		dst, src := d.Map(kind), remote.Map(kind)
		for k, v := range src {
			dst[k] = v
		}
	}
}

// Len reports the total number of saved items across every map.
func (d *Doc) Len() int {
	n := 0
	for _, kind := range Kinds {
		n += len(d.Map(kind))
	}
	return n
}
