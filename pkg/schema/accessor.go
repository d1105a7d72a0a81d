package schema

// AccessMode how a field reaches its value inside an object
type AccessMode uint8

const (
	AccessDirect   AccessMode = iota // pointer into the object's own memory
	AccessIndirect                   // getter / setter pair
)

func (m AccessMode) String() string {
	if m == AccessIndirect {
		return "indirect"
	}
	return "direct"
}

// Accessor reads and writes element i of a field on obj.
// Values cross the accessor as the Go type matching Kind():
// bool, int8 ... uint64, float32, float64, string, []byte, or the nested
// object (a pointer) for KindClass.
type Accessor interface {
	Mode() AccessMode
	Kind() Kind
	Get(obj any, i int) any
	Set(obj any, i int, v any)
}

func kindOf[T any]() Kind {
	var zero T
	switch any(zero).(type) {
	case bool:
		return KindBool
	case int8:
		return KindInt8
	case uint8:
		return KindUint8
	case int16:
		return KindInt16
	case uint16:
		return KindUint16
	case int32:
		return KindInt32
	case uint32:
		return KindUint32
	case int64:
		return KindInt64
	case uint64:
		return KindUint64
	case float32:
		return KindFloat32
	case float64:
		return KindFloat64
	case string:
		return KindString
	case []byte:
		return KindBlob
	}
	return KindClass
}

type direct[T any] struct {
	kind Kind
	ptr  func(obj any) *T
}

// Direct binds a scalar field to its address inside the object.
// For nested classes T is the nested struct and Get returns *T.
func Direct[T any](ptr func(obj any) *T) Accessor {
	return &direct[T]{kind: kindOf[T](), ptr: ptr}
}

func (d *direct[T]) Mode() AccessMode { return AccessDirect }
func (d *direct[T]) Kind() Kind       { return d.kind }

func (d *direct[T]) Get(obj any, _ int) any {
	p := d.ptr(obj)
	if d.kind == KindClass {
		return p
	}
	return *p
}

func (d *direct[T]) Set(obj any, _ int, v any) {
	if d.kind == KindClass {
		return
	}
	*d.ptr(obj) = v.(T)
}

type directArray[T any] struct {
	kind  Kind
	slice func(obj any) []T
}

// DirectArray binds an array field; the returned slice must alias the
// object's storage and hold at least Count elements.
func DirectArray[T any](slice func(obj any) []T) Accessor {
	return &directArray[T]{kind: kindOf[T](), slice: slice}
}

func (d *directArray[T]) Mode() AccessMode { return AccessDirect }
func (d *directArray[T]) Kind() Kind       { return d.kind }

func (d *directArray[T]) Get(obj any, i int) any {
	s := d.slice(obj)
	if d.kind == KindClass {
		return &s[i]
	}
	return s[i]
}

func (d *directArray[T]) Set(obj any, i int, v any) {
	if d.kind == KindClass {
		return
	}
	d.slice(obj)[i] = v.(T)
}

type indirect[T any] struct {
	kind Kind
	get  func(obj any, i int) T
	set  func(obj any, i int, v T)
}

// Indirect binds a scalar field through a getter / setter pair.
func Indirect[T any](get func(obj any) T, set func(obj any, v T)) Accessor {
	a := &indirect[T]{kind: kindOf[T]()}
	a.get = func(obj any, _ int) T { return get(obj) }
	if set != nil {
		a.set = func(obj any, _ int, v T) { set(obj, v) }
	}
	return a
}

// IndirectArray binds an array field through indexed getter / setter.
func IndirectArray[T any](get func(obj any, i int) T, set func(obj any, i int, v T)) Accessor {
	return &indirect[T]{kind: kindOf[T](), get: get, set: set}
}

func (d *indirect[T]) Mode() AccessMode { return AccessIndirect }
func (d *indirect[T]) Kind() Kind       { return d.kind }

func (d *indirect[T]) Get(obj any, i int) any {
	return d.get(obj, i)
}

func (d *indirect[T]) Set(obj any, i int, v any) {
	// read only fields and nested objects are written through their getter
	if d.set == nil || d.kind == KindClass {
		return
	}
	d.set(obj, i, v.(T))
}
