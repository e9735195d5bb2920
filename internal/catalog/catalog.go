// Package catalog is the static registry of reportable entities. Every
// entity, field and relation a report definition may reference is declared
// here at compile time; nothing is discovered at runtime.
package catalog

import "fmt"

// FieldKind is the semantic type of a reportable field
type FieldKind string

const (
	FieldKindString  FieldKind = "string"
	FieldKindNumber  FieldKind = "number"
	FieldKindDate    FieldKind = "date"
	FieldKindBoolean FieldKind = "boolean"
)

// Field describes one queryable column of an entity
type Field struct {
	Name         string    `json:"name"`
	Column       string    `json:"-"`
	Kind         FieldKind `json:"type"`
	Label        string    `json:"label"`
	Filterable   bool      `json:"filterable"`
	Sortable     bool      `json:"sortable"`
	Groupable    bool      `json:"groupable"`
	Aggregatable bool      `json:"aggregatable"`
}

// Relation describes a declared one-hop join from an entity to another
type Relation struct {
	Name       string `json:"name"`
	Target     string `json:"target"`
	LocalKey   string `json:"-"`
	ForeignKey string `json:"-"`
}

// Entity is one reportable entity with its fields and relations
type Entity struct {
	Name       string
	Table      string
	Alias      string
	PrimaryKey string
	fields     []Field
	fieldIndex map[string]int
	relations  map[string]Relation
}

// UnknownEntityError is returned when a definition references an entity
// that is not in the registry
type UnknownEntityError struct {
	Entity string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown entity %q", e.Entity)
}

// UnknownFieldError is returned when a field name does not resolve against
// an entity. A reference that cannot be resolved always fails the plan;
// silently dropping it would corrupt report results.
type UnknownFieldError struct {
	Entity string
	Field  string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q on entity %q", e.Field, e.Entity)
}

// UnknownRelationError is returned when a relation name does not resolve
type UnknownRelationError struct {
	Entity   string
	Relation string
}

func (e *UnknownRelationError) Error() string {
	return fmt.Sprintf("unknown relation %q on entity %q", e.Relation, e.Entity)
}

// ResolveField resolves a field name to its declaration
func (e *Entity) ResolveField(name string) (Field, error) {
	idx, ok := e.fieldIndex[name]
	if !ok {
		return Field{}, &UnknownFieldError{Entity: e.Name, Field: name}
	}
	return e.fields[idx], nil
}

// ResolveRelation resolves a relation name to its declaration
func (e *Entity) ResolveRelation(name string) (Relation, error) {
	rel, ok := e.relations[name]
	if !ok {
		return Relation{}, &UnknownRelationError{Entity: e.Name, Relation: name}
	}
	return rel, nil
}

// Fields returns the entity's fields in declaration order
func (e *Entity) Fields() []Field {
	out := make([]Field, len(e.fields))
	copy(out, e.fields)
	return out
}

// Relations returns the entity's declared relations
func (e *Entity) Relations() []Relation {
	out := make([]Relation, 0, len(e.relations))
	for _, rel := range e.relations {
		out = append(out, rel)
	}
	return out
}

var registry = map[string]*Entity{}

// Lookup resolves an entity by name
func Lookup(name string) (*Entity, error) {
	entity, ok := registry[name]
	if !ok {
		return nil, &UnknownEntityError{Entity: name}
	}
	return entity, nil
}

// Entities returns all registered entities in a stable order
func Entities() []*Entity {
	names := []string{"call", "campaign", "lead", "agent", "disposition"}
	out := make([]*Entity, 0, len(names))
	for _, name := range names {
		out = append(out, registry[name])
	}
	return out
}

func register(e *Entity, fields []Field, relations []Relation) {
	e.fields = fields
	e.fieldIndex = make(map[string]int, len(fields))
	for i, f := range fields {
		e.fieldIndex[f.Name] = i
	}
	e.relations = make(map[string]Relation, len(relations))
	for _, r := range relations {
		e.relations[r.Name] = r
	}
	registry[e.Name] = e
}

func init() {
	register(
		&Entity{Name: "call", Table: "calls", Alias: "c", PrimaryKey: "id"},
		[]Field{
			{Name: "id", Column: "id", Kind: FieldKindString, Label: "Call ID", Filterable: true, Sortable: true, Aggregatable: true},
			{Name: "campaignId", Column: "campaign_id", Kind: FieldKindString, Label: "Campaign ID", Filterable: true, Sortable: true, Groupable: true},
			{Name: "leadId", Column: "lead_id", Kind: FieldKindString, Label: "Lead ID", Filterable: true, Groupable: true},
			{Name: "agentId", Column: "agent_id", Kind: FieldKindString, Label: "Agent ID", Filterable: true, Sortable: true, Groupable: true},
			{Name: "dispositionId", Column: "disposition_id", Kind: FieldKindString, Label: "Disposition ID", Filterable: true, Groupable: true},
			{Name: "direction", Column: "direction", Kind: FieldKindString, Label: "Direction", Filterable: true, Sortable: true, Groupable: true},
			{Name: "status", Column: "status", Kind: FieldKindString, Label: "Status", Filterable: true, Sortable: true, Groupable: true},
			{Name: "phoneNumber", Column: "phone_number", Kind: FieldKindString, Label: "Phone Number", Filterable: true, Sortable: true},
			{Name: "durationSeconds", Column: "duration_seconds", Kind: FieldKindNumber, Label: "Duration (s)", Filterable: true, Sortable: true, Aggregatable: true},
			{Name: "talkTimeSeconds", Column: "talk_time_seconds", Kind: FieldKindNumber, Label: "Talk Time (s)", Filterable: true, Sortable: true, Aggregatable: true},
			{Name: "waitTimeSeconds", Column: "wait_time_seconds", Kind: FieldKindNumber, Label: "Wait Time (s)", Filterable: true, Sortable: true, Aggregatable: true},
			{Name: "cost", Column: "cost", Kind: FieldKindNumber, Label: "Cost", Filterable: true, Sortable: true, Aggregatable: true},
			{Name: "answered", Column: "answered", Kind: FieldKindBoolean, Label: "Answered", Filterable: true, Groupable: true},
			{Name: "recordingUrl", Column: "recording_url", Kind: FieldKindString, Label: "Recording URL"},
			{Name: "startedAt", Column: "started_at", Kind: FieldKindDate, Label: "Started At", Filterable: true, Sortable: true},
			{Name: "endedAt", Column: "ended_at", Kind: FieldKindDate, Label: "Ended At", Filterable: true, Sortable: true},
			{Name: "createdAt", Column: "created_at", Kind: FieldKindDate, Label: "Created At", Filterable: true, Sortable: true, Groupable: true},
		},
		[]Relation{
			{Name: "campaign", Target: "campaign", LocalKey: "campaign_id", ForeignKey: "id"},
			{Name: "lead", Target: "lead", LocalKey: "lead_id", ForeignKey: "id"},
			{Name: "agent", Target: "agent", LocalKey: "agent_id", ForeignKey: "id"},
			{Name: "disposition", Target: "disposition", LocalKey: "disposition_id", ForeignKey: "id"},
		},
	)

	register(
		&Entity{Name: "campaign", Table: "campaigns", Alias: "cp", PrimaryKey: "id"},
		[]Field{
			{Name: "id", Column: "id", Kind: FieldKindString, Label: "Campaign ID", Filterable: true, Sortable: true, Aggregatable: true},
			{Name: "name", Column: "name", Kind: FieldKindString, Label: "Campaign Name", Filterable: true, Sortable: true, Groupable: true},
			{Name: "status", Column: "status", Kind: FieldKindString, Label: "Status", Filterable: true, Sortable: true, Groupable: true},
			{Name: "dialMode", Column: "dial_mode", Kind: FieldKindString, Label: "Dial Mode", Filterable: true, Groupable: true},
			{Name: "callerId", Column: "caller_id", Kind: FieldKindString, Label: "Caller ID", Filterable: true},
			{Name: "totalLeads", Column: "total_leads", Kind: FieldKindNumber, Label: "Total Leads", Filterable: true, Sortable: true, Aggregatable: true},
			{Name: "dailyBudget", Column: "daily_budget", Kind: FieldKindNumber, Label: "Daily Budget", Filterable: true, Sortable: true, Aggregatable: true},
			{Name: "isActive", Column: "is_active", Kind: FieldKindBoolean, Label: "Active", Filterable: true, Groupable: true},
			{Name: "createdAt", Column: "created_at", Kind: FieldKindDate, Label: "Created At", Filterable: true, Sortable: true},
		},
		nil,
	)

	register(
		&Entity{Name: "lead", Table: "leads", Alias: "l", PrimaryKey: "id"},
		[]Field{
			{Name: "id", Column: "id", Kind: FieldKindString, Label: "Lead ID", Filterable: true, Sortable: true, Aggregatable: true},
			{Name: "campaignId", Column: "campaign_id", Kind: FieldKindString, Label: "Campaign ID", Filterable: true, Groupable: true},
			{Name: "firstName", Column: "first_name", Kind: FieldKindString, Label: "First Name", Filterable: true, Sortable: true},
			{Name: "lastName", Column: "last_name", Kind: FieldKindString, Label: "Last Name", Filterable: true, Sortable: true},
			{Name: "phoneNumber", Column: "phone_number", Kind: FieldKindString, Label: "Phone Number", Filterable: true, Sortable: true},
			{Name: "email", Column: "email", Kind: FieldKindString, Label: "Email", Filterable: true, Sortable: true},
			{Name: "status", Column: "status", Kind: FieldKindString, Label: "Status", Filterable: true, Sortable: true, Groupable: true},
			{Name: "source", Column: "source", Kind: FieldKindString, Label: "Source", Filterable: true, Groupable: true},
			{Name: "attempts", Column: "attempts", Kind: FieldKindNumber, Label: "Attempts", Filterable: true, Sortable: true, Aggregatable: true},
			{Name: "converted", Column: "converted", Kind: FieldKindBoolean, Label: "Converted", Filterable: true, Groupable: true},
			{Name: "lastCalledAt", Column: "last_called_at", Kind: FieldKindDate, Label: "Last Called At", Filterable: true, Sortable: true},
			{Name: "createdAt", Column: "created_at", Kind: FieldKindDate, Label: "Created At", Filterable: true, Sortable: true, Groupable: true},
		},
		[]Relation{
			{Name: "campaign", Target: "campaign", LocalKey: "campaign_id", ForeignKey: "id"},
		},
	)

	register(
		&Entity{Name: "agent", Table: "agents", Alias: "a", PrimaryKey: "id"},
		[]Field{
			{Name: "id", Column: "id", Kind: FieldKindString, Label: "Agent ID", Filterable: true, Sortable: true, Aggregatable: true},
			{Name: "name", Column: "name", Kind: FieldKindString, Label: "Agent Name", Filterable: true, Sortable: true, Groupable: true},
			{Name: "email", Column: "email", Kind: FieldKindString, Label: "Email", Filterable: true, Sortable: true},
			{Name: "extension", Column: "extension", Kind: FieldKindString, Label: "Extension", Filterable: true, Sortable: true},
			{Name: "status", Column: "status", Kind: FieldKindString, Label: "Status", Filterable: true, Sortable: true, Groupable: true},
			{Name: "team", Column: "team", Kind: FieldKindString, Label: "Team", Filterable: true, Sortable: true, Groupable: true},
			{Name: "isActive", Column: "is_active", Kind: FieldKindBoolean, Label: "Active", Filterable: true, Groupable: true},
			{Name: "createdAt", Column: "created_at", Kind: FieldKindDate, Label: "Created At", Filterable: true, Sortable: true},
		},
		nil,
	)

	register(
		&Entity{Name: "disposition", Table: "dispositions", Alias: "d", PrimaryKey: "id"},
		[]Field{
			{Name: "id", Column: "id", Kind: FieldKindString, Label: "Disposition ID", Filterable: true, Sortable: true, Aggregatable: true},
			{Name: "name", Column: "name", Kind: FieldKindString, Label: "Disposition", Filterable: true, Sortable: true, Groupable: true},
			{Name: "code", Column: "code", Kind: FieldKindString, Label: "Code", Filterable: true, Sortable: true, Groupable: true},
			{Name: "category", Column: "category", Kind: FieldKindString, Label: "Category", Filterable: true, Groupable: true},
			{Name: "isConversion", Column: "is_conversion", Kind: FieldKindBoolean, Label: "Conversion", Filterable: true, Groupable: true},
			{Name: "createdAt", Column: "created_at", Kind: FieldKindDate, Label: "Created At", Filterable: true, Sortable: true},
		},
		nil,
	)
}
