package cache

// tagIndex maps tag -> set of keys and key -> set of tags, enabling bulk
// invalidation by tag. It is not internally locked: the coordinator
// mutates it under the same mutex as the memory tier, so the dispose
// hook and a concurrent set never leave the index pointing at a removed
// key.
type tagIndex struct {
	tags map[string]map[string]struct{}
	keys map[string]map[string]struct{}
}

func newTagIndex() *tagIndex {
	return &tagIndex{
		tags: make(map[string]map[string]struct{}),
		keys: make(map[string]map[string]struct{}),
	}
}

// register records key under each tag, replacing any previous tag set
// for that key.
func (t *tagIndex) register(key string, tags []string) {
	t.deregister(key)

	if len(tags) == 0 {
		return
	}

	tagSet := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tagSet[tag] = struct{}{}

		keys, ok := t.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			t.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
	t.keys[key] = tagSet
}

// deregister removes key from every tag it was registered under.
func (t *tagIndex) deregister(key string) {
	tagSet, ok := t.keys[key]
	if !ok {
		return
	}

	for tag := range tagSet {
		if keys, ok := t.tags[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(t.tags, tag)
			}
		}
	}
	delete(t.keys, key)
}

// keysFor returns the union of keys registered under any of the tags.
func (t *tagIndex) keysFor(tags []string) []string {
	union := make(map[string]struct{})
	for _, tag := range tags {
		for key := range t.tags[tag] {
			union[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(union))
	for key := range union {
		keys = append(keys, key)
	}
	return keys
}

// tagsOf returns the tags registered for key, or nil.
func (t *tagIndex) tagsOf(key string) []string {
	tagSet, ok := t.keys[key]
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, tag)
	}
	return tags
}

func (t *tagIndex) clear() {
	t.tags = make(map[string]map[string]struct{})
	t.keys = make(map[string]map[string]struct{})
}
