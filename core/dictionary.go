package core

import (
	"sort"
	"sync"
)

// Dictionary is the JSON data dictionary the host fetches with identify. It
// lists every command and response with its ID, plus firmware constants and
// enumerations.
type Dictionary struct {
	mu            sync.RWMutex
	reg           *CommandRegistry
	version       string
	buildVersions string
	constants     map[string]string
	enumerations  map[string][]string
	cached        []byte
}

func NewDictionary(reg *CommandRegistry, version string) *Dictionary {
	return &Dictionary{
		reg:           reg,
		version:       version,
		buildVersions: "go",
		constants:     make(map[string]string),
		enumerations:  make(map[string][]string),
	}
}

// AddConstant records a constant. Integer and bool values are rendered in
// decimal; every value is sent as a JSON string.
func (d *Dictionary) AddConstant(name string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = valueToString(value)
	d.cached = nil
}

// AddEnumeration records an enumeration whose values map to their index.
// Empty values are skipped.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enumerations[name] = append([]string(nil), values...)
	d.cached = nil
}

// SetBuildVersions sets the build_versions field.
func (d *Dictionary) SetBuildVersions(v string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = v
	d.cached = nil
}

// Build renders and caches the dictionary. Call it once every command is
// registered; later additions invalidate the cache.
func (d *Dictionary) Build() []byte {
	commands, responses := d.reg.CommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached = d.render(commands, responses)
	DebugPrintln("[DICT] built, " + itoa(len(d.cached)) + " bytes")
	return d.cached
}

// Generate returns the cached dictionary, building it if needed.
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cached
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}
	return d.Build()
}

// Chunk returns up to count bytes of the dictionary from offset. Past the
// end it returns an empty chunk, which tells the host it has everything.
func (d *Dictionary) Chunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := min(offset+uint32(count), uint32(len(data)))
	return append([]byte(nil), data[offset:end]...)
}

func (d *Dictionary) render(commands, responses map[string]int) []byte {
	b := make([]byte, 0, 1024)
	b = append(b, `{"version":`...)
	b = appendJSONString(b, d.version)
	b = append(b, `,"build_versions":`...)
	b = appendJSONString(b, d.buildVersions)

	b = append(b, `,"config":{`...)
	for i, name := range sortedKeys(d.constants) {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendJSONString(b, name)
		b = append(b, ':')
		b = appendJSONString(b, d.constants[name])
	}
	b = append(b, '}')

	b = append(b, `,"commands":`...)
	b = appendIDMap(b, commands)
	b = append(b, `,"responses":`...)
	b = appendIDMap(b, responses)

	if len(d.enumerations) > 0 {
		b = append(b, `,"enumerations":{`...)
		for i, name := range sortedKeys(d.enumerations) {
			if i > 0 {
				b = append(b, ',')
			}
			b = appendJSONString(b, name)
			b = append(b, ":{"...)
			first := true
			for idx, v := range d.enumerations[name] {
				if v == "" {
					continue
				}
				if !first {
					b = append(b, ',')
				}
				first = false
				b = appendJSONString(b, v)
				b = append(b, ':')
				b = append(b, itoa(idx)...)
			}
			b = append(b, '}')
		}
		b = append(b, '}')
	}
	return append(b, '}')
}

// appendIDMap writes m as a JSON object ordered by ID.
func appendIDMap(b []byte, m map[string]int) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return m[keys[i]] < m[keys[j]] })

	b = append(b, '{')
	for i, k := range keys {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendJSONString(b, k)
		b = append(b, ':')
		b = append(b, itoa(m[k])...)
	}
	return append(b, '}')
}

func appendJSONString(b []byte, s string) []byte {
	b = append(b, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b = append(b, '\\', c)
		case c < 0x20:
			b = append(b, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0x0f])
		default:
			b = append(b, c)
		}
	}
	return append(b, '"')
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func valueToString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return itoa(x)
	case uint8:
		return itoa(int(x))
	case uint16:
		return itoa(int(x))
	case uint32:
		return itoa(int(x))
	case int32:
		return itoa(int(x))
	case bool:
		if x {
			return "1"
		}
		return "0"
	}
	return "?"
}
