package types

// ProtoRegistry is the shape of the descriptor service the type registry is
// built from. Per spec §1, actual .proto/FileDescriptorSet parsing is an
// external collaborator; this only specifies what the Type Registry needs
// injected, and a file-scoped collision check.
type ProtoRegistry struct {
	messages   map[string]*MessageDescriptor
	enums      map[string]*EnumDescriptor
	sourcePath map[string]string // fqn -> originating path, for collision errors
	extensions map[string][]*FieldDescriptor // containing message fqn -> extensions
}

// MessageDescriptor describes a proto message's fields.
type MessageDescriptor struct {
	FQN    string
	Fields []FieldDescriptor
}

// FieldDescriptor describes one field of a message.
type FieldDescriptor struct {
	Name       string
	Number     int
	TypeName   string // primitive keyword, or FQN for message/enum fields
	Repeated   bool
	Optional   bool
	Extendee   string // non-empty for extension fields: the FQN they extend
}

// EnumDescriptor describes a proto enum's named values.
type EnumDescriptor struct {
	FQN    string
	Values map[string]int
}

// NewProtoRegistry returns an empty descriptor service.
func NewProtoRegistry() *ProtoRegistry {
	return &ProtoRegistry{
		messages:   make(map[string]*MessageDescriptor),
		enums:      make(map[string]*EnumDescriptor),
		sourcePath: make(map[string]string),
		extensions: make(map[string][]*FieldDescriptor),
	}
}

// AddMessage registers a message descriptor sourced from the given path,
// failing with ProtoCollision if fqn is already bound to a different path.
func (p *ProtoRegistry) AddMessage(path string, d *MessageDescriptor) error {
	if existing, ok := p.sourcePath[d.FQN]; ok && existing != path {
		return &ProtoCollision{FQN: d.FQN, PathA: existing, PathB: path}
	}
	p.messages[d.FQN] = d
	p.sourcePath[d.FQN] = path
	for i := range d.Fields {
		if d.Fields[i].Extendee != "" {
			p.extensions[d.Fields[i].Extendee] = append(p.extensions[d.Fields[i].Extendee], &d.Fields[i])
		}
	}
	return nil
}

func (p *ProtoRegistry) AddEnum(path string, d *EnumDescriptor) error {
	if existing, ok := p.sourcePath[d.FQN]; ok && existing != path {
		return &ProtoCollision{FQN: d.FQN, PathA: existing, PathB: path}
	}
	p.enums[d.FQN] = d
	p.sourcePath[d.FQN] = path
	return nil
}

func (p *ProtoRegistry) Message(fqn string) (*MessageDescriptor, bool) {
	d, ok := p.messages[fqn]
	return d, ok
}

func (p *ProtoRegistry) Enum(fqn string) (*EnumDescriptor, bool) {
	d, ok := p.enums[fqn]
	return d, ok
}

// Extensions returns the extension fields registered against the message
// identified by containingFQN.
func (p *ProtoRegistry) Extensions(containingFQN string) []*FieldDescriptor {
	return p.extensions[containingFQN]
}
