package docdex

// CollectionOption configures collection creation.
type CollectionOption interface {
	applyCollection(*collectionConfig)
}

type collectionOptionFunc func(*collectionConfig)

func (f collectionOptionFunc) applyCollection(c *collectionConfig) { f(c) }

type collectionConfig struct {
	capped    *CappedOptions
	validator any
	validate  validatorConfig
}

// Capped bounds the collection by total bytes and optionally by document
// count. The oldest documents are evicted first.
func Capped(size, maxDocs int64) CollectionOption {
	return collectionOptionFunc(func(c *collectionConfig) {
		c.capped = &CappedOptions{Size: size, Max: maxDocs}
	})
}

// WithValidator attaches a validator: a query document, optionally with a
// $jsonSchema operator.
func WithValidator(rules any, opts ...ValidatorOption) CollectionOption {
	return collectionOptionFunc(func(c *collectionConfig) {
		c.validator = rules
		for _, o := range opts {
			o(&c.validate)
		}
	})
}

// ValidatorOption tunes validator behavior.
type ValidatorOption func(*validatorConfig)

type validatorConfig struct {
	action string
	level  string
}

// ValidationWarn accepts invalid documents and logs the violation.
func ValidationWarn() ValidatorOption {
	return func(c *validatorConfig) { c.action = "warn" }
}

// ValidationModerate skips validation of updates to documents that were
// already invalid.
func ValidationModerate() ValidatorOption {
	return func(c *validatorConfig) { c.level = "moderate" }
}

// IndexOption configures index creation.
type IndexOption func(*indexConfig)

type indexConfig struct {
	name    string
	unique  bool
	sparse  bool
	partial any
}

// IndexName overrides the generated index name.
func IndexName(name string) IndexOption {
	return func(c *indexConfig) { c.name = name }
}

// Unique rejects documents whose key is already present.
func Unique() IndexOption {
	return func(c *indexConfig) { c.unique = true }
}

// Sparse skips documents missing every indexed field.
func Sparse() IndexOption {
	return func(c *indexConfig) { c.sparse = true }
}

// Partial indexes only documents matching filter.
func Partial(filter any) IndexOption {
	return func(c *indexConfig) { c.partial = filter }
}
