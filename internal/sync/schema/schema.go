// Package schema declares, once and as data, the per-entity field
// lists and flags (numeric, required, date-only, link) that drive
// FieldMapper, EntitySyncer, and both store adapters uniformly. This
// mirrors the teacher's EntitySchema/FieldMapping tables
// (infinite-experiment/politburo's internal/models/dtos/provider_config.go),
// generalized from one Airtable-schema-per-VA row into a fixed,
// compile-time table for the seven entities this engine reconciles.
package schema

// Entity names one of the seven syncable record kinds.
type Entity string

const (
	Car      Entity = "car"
	Location Entity = "location"
	Company  Entity = "company"
	Load     Entity = "load"
	User     Entity = "user"
	Booking  Entity = "booking"
	Request  Entity = "request"
)

// Entities lists all syncable entities in the fixed dependency order
// used by the RunCoordinator (parents before children).
var Entities = []Entity{Location, Company, User, Car, Load, Booking, Request}

// Direction names one leg of the bidirectional sync.
type Direction string

const (
	SheetToRelational Direction = "airtable_to_supabase"
	RelationalToSheet Direction = "supabase_to_airtable"
)

// LinkField is a scalar (relational) / single-element-list (sheet)
// reference to another entity.
type LinkField struct {
	Key    string
	Target Entity
}

// Def is the declarative description of one entity's field shape.
type Def struct {
	Entity    Entity
	TableName string // relational table name

	// Fields lists every non-link domain field key (value, numeric,
	// and date-only fields are all listed here; the maps below flag
	// which behavior applies to which key).
	Fields []string

	Numeric  map[string]bool
	Required map[string]bool
	DateOnly map[string]bool

	Links []LinkField

	// HasLoadCarsLink is true only for Load: the aggregated
	// load_cars sheet field is not a normal link and is populated
	// from the load_cars join table instead of a cross-ref lookup.
	HasLoadCarsLink bool
}

func set(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// Defs is the fixed table of entity definitions.
var Defs = map[Entity]Def{
	Car: {
		Entity:    Car,
		TableName: "cars",
		Fields: []string{
			"external_id", "make", "model", "vin", "license_plate",
			"carrier_name", "driver_name", "driver_phone",
			"special_instructions", "status",
			"carrier_rate", "customer_rate", "distance",
			"pickup_date", "delivery_date", "available_date",
			"requested_pickup_date", "requested_delivery_date",
		},
		Numeric:  set("carrier_rate", "customer_rate", "distance"),
		Required: set("make", "model"),
		DateOnly: set(
			"pickup_date", "delivery_date", "available_date",
			"requested_pickup_date", "requested_delivery_date",
		),
		Links: []LinkField{
			{Key: "pickup_location_id", Target: Location},
			{Key: "delivery_location_id", Target: Location},
			{Key: "company_id", Target: Company},
		},
	},
	Location: {
		Entity:    Location,
		TableName: "locations",
		Fields: []string{
			"name", "address_line1", "address_line2", "city", "state",
			"country_code", "postal_code", "latitude", "longitude",
			"created_at",
		},
		Numeric:  set("latitude", "longitude"),
		Required: set("address_line1", "city", "country_code"),
		DateOnly: set("created_at"),
	},
	Company: {
		Entity:    Company,
		TableName: "companies",
		Fields: []string{
			"name", "contact_email", "contact_phone", "website",
		},
		Numeric:  map[string]bool{},
		Required: set("name"),
		DateOnly: map[string]bool{},
	},
	Load: {
		Entity:    Load,
		TableName: "loads",
		Fields: []string{
			"load_number", "status", "notes",
			"total_distance_km", "estimated_duration_hours", "transport_rate",
			"created_at",
		},
		Numeric:  set("total_distance_km", "estimated_duration_hours", "transport_rate"),
		Required: set("load_number"),
		DateOnly: set("created_at"),
		Links: []LinkField{
			{Key: "company_id", Target: Company},
			{Key: "pickup_location_id", Target: Location},
			{Key: "delivery_location_id", Target: Location},
		},
		HasLoadCarsLink: true,
	},
	User: {
		Entity:    User,
		TableName: "users",
		Fields: []string{
			"email", "full_name", "phone", "role", "created_at",
		},
		Numeric:  map[string]bool{},
		Required: set("email"),
		DateOnly: set("created_at"),
		Links: []LinkField{
			{Key: "company_id", Target: Company},
		},
	},
	Booking: {
		Entity:    Booking,
		TableName: "bookings",
		Fields: []string{
			"status", "reference_number",
			"quoted_price", "final_price", "margin_percentage",
			"quoted_at",
		},
		Numeric:  set("quoted_price", "final_price", "margin_percentage"),
		Required: map[string]bool{},
		DateOnly: set("quoted_at"),
		Links: []LinkField{
			{Key: "load_id", Target: Load},
			{Key: "company_id", Target: Company},
		},
	},
	Request: {
		Entity:    Request,
		TableName: "requests",
		Fields: []string{
			"status", "notes", "requested_by",
		},
		Numeric:  map[string]bool{},
		Required: map[string]bool{},
		DateOnly: map[string]bool{},
		Links: []LinkField{
			{Key: "company_id", Target: Company},
		},
	},
}

// LoadCarsTable is the join table name for the load<->car assignment
// rows aggregated into the sheet-side load_cars link (§4.1, §4.4).
const LoadCarsTable = "load_cars"

// SecondaryKeyField names, per entity, the field EntitySyncer falls
// back to for matching a source record to a target when the cross-ref
// index has no entry (§4.6.3.a). An empty field name means the
// secondary key is the universal airtable_id column rather than a
// domain field.
func SecondaryKeyField(e Entity) string {
	switch e {
	case Car:
		return "external_id"
	case Company:
		return "name"
	case Load:
		return "load_number"
	case User:
		return "email"
	default: // Location, Booking, Request: airtable_id
		return ""
	}
}
