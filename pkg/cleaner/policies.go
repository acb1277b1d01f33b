// pkg/cleaner/policies.go
package cleaner

import "fmt"

// Entity identifies a business entity with its own cleaning policy
type Entity string

const (
	EntityUser     Entity = "user"
	EntityCard     Entity = "card"
	EntityStore    Entity = "store"
	EntityProduct  Entity = "product"
	EntityOrder    Entity = "order"
	EntityDateTime Entity = "datetime"
)

// Entities lists every entity in load order: dimensions before orders
var Entities = []Entity{
	EntityUser,
	EntityCard,
	EntityStore,
	EntityProduct,
	EntityDateTime,
	EntityOrder,
}

// ParseEntity converts a name such as "users" or "date_times" to an Entity
func ParseEntity(name string) (Entity, error) {
	switch name {
	case "user", "users":
		return EntityUser, nil
	case "card", "cards":
		return EntityCard, nil
	case "store", "stores":
		return EntityStore, nil
	case "product", "products":
		return EntityProduct, nil
	case "order", "orders":
		return EntityOrder, nil
	case "datetime", "datetimes", "date_times", "date-times":
		return EntityDateTime, nil
	default:
		return "", fmt.Errorf("unknown entity %q", name)
	}
}

// TableName returns the star-schema table the entity loads into
func (e Entity) TableName() string {
	switch e {
	case EntityUser:
		return "dim_users"
	case EntityCard:
		return "dim_card_details"
	case EntityStore:
		return "dim_store_details"
	case EntityProduct:
		return "dim_products"
	case EntityDateTime:
		return "dim_date_times"
	case EntityOrder:
		return "orders_table"
	default:
		return string(e)
	}
}

// PolicyFor returns the cleaning policy of an entity
func PolicyFor(e Entity) (Policy, error) {
	switch e {
	case EntityUser:
		return Policy{
			Entity:           EntityUser,
			DropEmptyColumns: true,
			DropIncomplete:   true,
			NameColumn:       "first_name",
			RequiredColumns:  []string{"email_address"},
			DateColumns:      []string{"date_of_birth", "join_date", "registration_date"},
			IntColumns:       []string{"age"},
			KeyColumn:        "user_uuid",
			FillMissing:      "Unknown",
		}, nil
	case EntityCard:
		return Policy{
			Entity:           EntityCard,
			DropEmptyColumns: true,
			DropIncomplete:   true,
			RequiredColumns:  []string{"card_number"},
			DigitColumns:     []string{"card_number"},
			DateColumns:      []string{"date_payment_confirmed"},
			KeyColumn:        "card_number",
		}, nil
	case EntityStore:
		return Policy{
			Entity:           EntityStore,
			DropEmptyColumns: true,
			DropIncomplete:   true,
			NameColumn:       "locality",
			RequiredColumns:  []string{"store_code"},
			DateColumns:      []string{"opening_date"},
			IntColumns:       []string{"staff_numbers"},
			KeyColumn:        "store_code",
		}, nil
	case EntityDateTime:
		return Policy{
			Entity:           EntityDateTime,
			DropEmptyColumns: true,
			DropIncomplete:   true,
			RequiredColumns:  []string{"date_uuid"},
			IntColumns:       []string{"month", "year", "day"},
			KeyColumn:        "date_uuid",
		}, nil
	case EntityProduct:
		return Policy{
			Entity:            EntityProduct,
			QuantityColumn:    "weight",
			DropIncomplete:    true,
			DropDuplicateRows: true,
			FloatColumns:      []string{"weight"},
			LowerColumns:      []string{"product_name"},
			Bounds:            map[string]Range{"weight": {Min: 0, Max: 100}},
		}, nil
	case EntityOrder:
		return Policy{
			Entity:         EntityOrder,
			DropColumns:    []string{"first_name", "last_name", "1"},
			DropIncomplete: true,
		}, nil
	default:
		return Policy{}, fmt.Errorf("no cleaning policy for entity %q", e)
	}
}
