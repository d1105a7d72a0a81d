package schema

import (
	"fmt"
	"sort"
)

// Class networked class schema
type Class struct {
	Name   string
	Parent *Class
	// New creates an empty instance, used by receivers of generate datagrams
	New func() any

	fields   []*Field // own fields, insertion order
	messages []*Message

	inherited         []*Field // own + ancestors, sorted by name
	inheritedMessages []*Message
	fieldIndex        map[string]int
	messageIndex      map[string]int

	id         uint16
	flattened  bool
	registered bool
}

// NewClass 构造
func NewClass(name string, parent *Class, factory func() any) *Class {
	return &Class{
		Name:   name,
		Parent: parent,
		New:    factory,
	}
}

// AddField declares a field. Panics on misconfiguration or after Flatten.
func (c *Class) AddField(f Field) *Class {
	if c.flattened {
		panic(fmt.Sprintf("schema: class %s already flattened", c.Name))
	}
	f.validate(c.Name)
	for _, v := range c.fields {
		if v.Name == f.Name {
			panic(fmt.Sprintf("schema: class %s duplicate field %s", c.Name, f.Name))
		}
	}
	c.fields = append(c.fields, &f)
	return c
}

// AddMessage declares a message handled by instances of the class.
func (c *Class) AddMessage(name string, flags MessageFlags, handler MessageHandler) *Class {
	if c.flattened {
		panic(fmt.Sprintf("schema: class %s already flattened", c.Name))
	}
	if name == "" || handler == nil {
		panic(fmt.Sprintf("schema: class %s message needs name and handler", c.Name))
	}
	for _, v := range c.messages {
		if v.Name == name {
			panic(fmt.Sprintf("schema: class %s duplicate message %s", c.Name, name))
		}
	}
	c.messages = append(c.messages, &Message{Name: name, Flags: flags, Handler: handler})
	return c
}

// Flatten merges the parent's inherited fields with the own fields and sorts
// them by name. Idempotent.
func (c *Class) Flatten() {
	if c.flattened {
		return
	}

	var fields []*Field
	var messages []*Message
	if nil != c.Parent {
		c.Parent.Flatten()
		fields = append(fields, c.Parent.inherited...)
		messages = append(messages, c.Parent.inheritedMessages...)
	}
	fields = append(fields, c.fields...)
	messages = append(messages, c.messages...)

	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	sort.SliceStable(messages, func(i, j int) bool { return messages[i].Name < messages[j].Name })

	c.fieldIndex = make(map[string]int, len(fields))
	for i, f := range fields {
		if _, ok := c.fieldIndex[f.Name]; ok {
			panic(fmt.Sprintf("schema: class %s field %s shadows an inherited field", c.Name, f.Name))
		}
		c.fieldIndex[f.Name] = i
	}
	c.messageIndex = make(map[string]int, len(messages))
	for i, m := range messages {
		if _, ok := c.messageIndex[m.Name]; ok {
			panic(fmt.Sprintf("schema: class %s message %s shadows an inherited message", c.Name, m.Name))
		}
		c.messageIndex[m.Name] = i
	}

	c.inherited = fields
	c.inheritedMessages = messages
	c.flattened = true
}

// Fields inherited fields in wire order; the index is the field id.
func (c *Class) Fields() []*Field {
	c.Flatten()
	return c.inherited
}

// OwnFields locally declared fields in declaration order
func (c *Class) OwnFields() []*Field {
	return c.fields
}

// FieldCount number of inherited fields
func (c *Class) FieldCount() int {
	return len(c.Fields())
}

// FieldIndex id of the named field, -1 when unknown
func (c *Class) FieldIndex(name string) int {
	c.Flatten()
	if i, ok := c.fieldIndex[name]; ok {
		return i
	}
	return -1
}

// Field field by id
func (c *Class) Field(id int) *Field {
	fields := c.Fields()
	if id < 0 || id >= len(fields) {
		return nil
	}
	return fields[id]
}

// ID dense class id, valid after Registry.Assign
func (c *Class) ID() uint16 {
	return c.id
}

// IsA reports whether c is other or derives from it.
func (c *Class) IsA(other *Class) bool {
	for v := c; v != nil; v = v.Parent {
		if v == other {
			return true
		}
	}
	return false
}

func (c *Class) String() string {
	return c.Name
}
