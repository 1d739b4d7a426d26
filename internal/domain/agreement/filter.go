package agreement

// RestoreKind selects how a stripped agreement field is written back.
type RestoreKind int

const (
	// RestoreValue writes the value back under its own nested path.
	RestoreValue RestoreKind = iota
	// RestoreReferences writes back only the ids of the referenced objects.
	RestoreReferences
)

// RestoreField describes one agreement field that cannot be sent on create
// and is restored with a follow-up update.
type RestoreField struct {
	Path FieldPath
	Kind RestoreKind
	// Strip removes the field from the create payload. Fields that are only
	// restored are accepted on create but ignored by the API.
	Strip bool
}

// AgreementRestoreFields lists the fields handled around agreement creation,
// in the order they are restored.
var AgreementRestoreFields = []RestoreField{
	{Path: "parameters.fulfillment", Kind: RestoreValue, Strip: true},
	{Path: "externalIds.vendor", Kind: RestoreValue, Strip: true},
	{Path: "template.id", Kind: RestoreValue},
	{Path: "certificates", Kind: RestoreReferences, Strip: true},
}

// Projection is an allow-list of field paths. Applying it copies only the
// listed fields, creating the intermediate objects they need.
type Projection []FieldPath

// Apply returns a new record holding deep copies of the listed fields found
// in src. The second result names the listed fields that were absent.
func (p Projection) Apply(src Record) (Record, []FieldPath) {
	out := Record{}
	var missing []FieldPath
	for _, path := range p {
		v, ok := src.Lookup(path)
		if !ok {
			missing = append(missing, path)
			continue
		}
		out.Set(path, deepCopy(v))
	}
	return out, missing
}

// SubscriptionFields is the top level allow-list for a subscription create.
var SubscriptionFields = Projection{
	"agreement",
	"autoRenew",
	"commitmentDate",
	"externalIds",
	"lines",
	"name",
	"parameters",
	"startDate",
	"template",
}

// LineFields is the allow-list applied to each subscription line.
var LineFields = Projection{
	"item.id",
	"quantity",
}

// LinePriceField is kept on each line when the purchase price is preserved.
const LinePriceField FieldPath = "price"
