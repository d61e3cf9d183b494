package coap

import (
	"sort"
	"strings"
)

// Options is an option list kept in ascending number order. Options with
// the same number keep their insertion order.
type Options []Option

// Get returns the first option with number n.
func (o Options) Get(n OptionNumber) (Option, bool) {
	for _, opt := range o {
		if opt.Number == n {
			return opt, true
		}
	}
	return Option{}, false
}

// GetAll returns every option with number n.
func (o Options) GetAll(n OptionNumber) []Option {
	var out []Option
	for _, opt := range o {
		if opt.Number == n {
			out = append(out, opt)
		}
	}
	return out
}

// Has returns true if an option with number n is present.
func (o Options) Has(n OptionNumber) bool {
	_, ok := o.Get(n)
	return ok
}

// Uint returns the integer value of the first option with number n.
func (o Options) Uint(n OptionNumber) (uint64, bool) {
	opt, ok := o.Get(n)
	if !ok {
		return 0, false
	}
	v, err := opt.Uint()
	if err != nil {
		return 0, false
	}
	return v, true
}

// Strings returns the values of every option with number n as strings.
func (o Options) Strings(n OptionNumber) []string {
	var out []string
	for _, opt := range o {
		if opt.Number == n {
			out = append(out, string(opt.Value))
		}
	}
	return out
}

// Add inserts opt after any options with a number less than or equal to it.
func (o *Options) Add(opt Option) {
	i := sort.Search(len(*o), func(i int) bool { return (*o)[i].Number > opt.Number })
	*o = append(*o, Option{})
	copy((*o)[i+1:], (*o)[i:])
	(*o)[i] = opt
}

// Set replaces all options with the same number by opt.
func (o *Options) Set(opt Option) {
	o.Del(opt.Number)
	o.Add(opt)
}

// SetUint replaces option n with an integer value.
func (o *Options) SetUint(n OptionNumber, v uint64) {
	o.Set(UintOption(n, v))
}

// Del removes all options with number n.
func (o *Options) Del(n OptionNumber) {
	out := (*o)[:0]
	for _, opt := range *o {
		if opt.Number != n {
			out = append(out, opt)
		}
	}
	*o = out
}

// Path returns the Uri-Path segments.
func (o Options) Path() Path {
	return Path(o.Strings(URIPath))
}

// SetPath replaces the Uri-Path options with the segments of p.
func (o *Options) SetPath(p Path) {
	o.Del(URIPath)
	for _, seg := range p {
		o.Add(StringOption(URIPath, seg))
	}
}

// LocationPath returns the Location-Path segments.
func (o Options) LocationPath() Path {
	return Path(o.Strings(LocationPath))
}

// SetLocationPath replaces the Location-Path options with p.
func (o *Options) SetLocationPath(p Path) {
	o.Del(LocationPath)
	for _, seg := range p {
		o.Add(StringOption(LocationPath, seg))
	}
}

// Queries returns the raw Uri-Query values.
func (o Options) Queries() []string {
	return o.Strings(URIQuery)
}

// Query returns the value of the first "key=value" Uri-Query with the
// given key. A bare "key" yields an empty value.
func (o Options) Query(key string) (string, bool) {
	for _, q := range o.Queries() {
		k, v, _ := strings.Cut(q, "=")
		if k == key {
			return v, true
		}
	}
	return "", false
}

// AddQuery appends a Uri-Query option "key=value" (or "key" if value is empty).
func (o *Options) AddQuery(key, value string) {
	q := key
	if value != "" {
		q += "=" + value
	}
	o.Add(StringOption(URIQuery, q))
}

// ContentFormat returns the Content-Format option value.
func (o Options) ContentFormat() (ContentFormat, bool) {
	v, ok := o.Uint(ContentFormatOption)
	return ContentFormat(v), ok
}

// SetContentFormat sets the Content-Format option.
func (o *Options) SetContentFormat(cf ContentFormat) {
	o.SetUint(ContentFormatOption, uint64(cf))
}

// Accept returns the Accept option value.
func (o Options) Accept() (ContentFormat, bool) {
	v, ok := o.Uint(Accept)
	return ContentFormat(v), ok
}

// Observe returns the Observe option value.
func (o Options) Observe() (uint32, bool) {
	v, ok := o.Uint(Observe)
	return uint32(v), ok
}

// MaxAge returns the Max-Age option in seconds.
func (o Options) MaxAge() (uint32, bool) {
	v, ok := o.Uint(MaxAge)
	return uint32(v), ok
}

// ETag returns the first ETag value.
func (o Options) ETag() ([]byte, bool) {
	opt, ok := o.Get(ETag)
	return opt.Value, ok
}

// Block1 returns the decoded Block1 option.
func (o Options) Block1() (Block, bool, error) {
	return o.block(Block1)
}

// Block2 returns the decoded Block2 option.
func (o Options) Block2() (Block, bool, error) {
	return o.block(Block2)
}

func (o Options) block(n OptionNumber) (Block, bool, error) {
	opt, ok := o.Get(n)
	if !ok {
		return Block{}, false, nil
	}
	blk, err := DecodeBlock(opt.Value)
	return blk, true, err
}

// Clone returns a deep copy.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	for i, opt := range o {
		out[i] = Option{Number: opt.Number, Value: append([]byte(nil), opt.Value...)}
	}
	return out
}

// Equal compares two option lists element by element.
func (o Options) Equal(other Options) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if !o[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Validate checks the list against the option registry. Unknown critical
// options, repeated non-repeatable options, over-long values and invalid
// block options are reported as 4.02 Bad Option.
func (o Options) Validate() error {
	seen := make(map[OptionNumber]bool, len(o))
	for _, opt := range o {
		def, known := optionDefs[opt.Number]
		if !known {
			if opt.Number.IsCritical() {
				return NewCodeError(BadOption, "unknown critical option %d", opt.Number)
			}
			continue
		}
		if seen[opt.Number] && !def.repeatable {
			return NewCodeError(BadOption, "duplicated %s", opt.Number)
		}
		seen[opt.Number] = true
		if len(opt.Value) > def.maxLen {
			return NewCodeError(BadOption, "%s value of %d bytes", opt.Number, len(opt.Value))
		}
		if opt.Number == Block1 || opt.Number == Block2 {
			if _, err := DecodeBlock(opt.Value); err != nil {
				return WrapCode(BadOption, err)
			}
		}
	}
	return nil
}

// sorted returns a stably sorted copy.
func (o Options) sorted() Options {
	out := append(Options(nil), o...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
