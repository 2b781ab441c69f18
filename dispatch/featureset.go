package dispatch

// featureSet is an order-preserving set of feature names, used to build
// Query.query's response: insertion order matters for reproducible
// output even though membership is all that's semantically required.
type featureSet struct {
	order []string
	seen  map[string]bool
}

func newFeatureSet(initial []string) *featureSet {
	fs := &featureSet{seen: make(map[string]bool)}
	for _, f := range initial {
		fs.add(f)
	}
	return fs
}

func (fs *featureSet) add(feature string) {
	if fs.seen[feature] {
		return
	}
	fs.seen[feature] = true
	fs.order = append(fs.order, feature)
}

func (fs *featureSet) remove(feature string) {
	if !fs.seen[feature] {
		return
	}
	delete(fs.seen, feature)
	filtered := fs.order[:0]
	for _, f := range fs.order {
		if f != feature {
			filtered = append(filtered, f)
		}
	}
	fs.order = filtered
}

func (fs *featureSet) has(feature string) bool {
	return fs.seen[feature]
}

func (fs *featureSet) list() []string {
	return fs.order
}
