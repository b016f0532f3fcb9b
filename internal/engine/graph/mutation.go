package graph

// Kind names a mutation variant. The values double as the wire tag of the
// JSON envelope.
type Kind string

const (
	KindUpsertClient            Kind = "upsert_client"
	KindUpsertNode              Kind = "upsert_node"
	KindUpsertDevice            Kind = "upsert_device"
	KindUpsertLink              Kind = "upsert_link"
	KindUpsertMetadata          Kind = "upsert_metadata"
	KindRemoveMetadataProperty  Kind = "remove_metadata_property"
	KindClearMetadataProperties Kind = "clear_metadata_properties"
	KindRemoveObject            Kind = "remove_object"
	KindShutdown                Kind = "shutdown"
)

// Mutation is one message on the persistence queue. Upserts carry the full
// entity snapshot; removals carry only the keys they address.
type Mutation interface {
	Kind() Kind
	// Target is the top-level object the mutation addresses, or zero for
	// Shutdown.
	Target() ObjectID
}

type UpsertClient struct {
	Client Client `json:"client"`
}

type UpsertNode struct {
	Node Node `json:"node"`
}

type UpsertDevice struct {
	Device Device `json:"device"`
}

type UpsertLink struct {
	Link Link `json:"link"`
}

type UpsertMetadata struct {
	Metadata Metadata `json:"metadata"`
}

type RemoveMetadataProperty struct {
	ObjectID ObjectID `json:"object_id"`
	Subject  uint32   `json:"subject"`
	Key      string   `json:"key"`
}

type ClearMetadataProperties struct {
	ObjectID ObjectID `json:"object_id"`
	Subject  uint32   `json:"subject"`
}

type RemoveObject struct {
	ObjectID ObjectID `json:"object_id"`
}

// Shutdown asks the persistence worker to stop accepting messages and exit
// once everything already queued has been applied.
type Shutdown struct{}

func (UpsertClient) Kind() Kind            { return KindUpsertClient }
func (UpsertNode) Kind() Kind              { return KindUpsertNode }
func (UpsertDevice) Kind() Kind            { return KindUpsertDevice }
func (UpsertLink) Kind() Kind              { return KindUpsertLink }
func (UpsertMetadata) Kind() Kind          { return KindUpsertMetadata }
func (RemoveMetadataProperty) Kind() Kind  { return KindRemoveMetadataProperty }
func (ClearMetadataProperties) Kind() Kind { return KindClearMetadataProperties }
func (RemoveObject) Kind() Kind            { return KindRemoveObject }
func (Shutdown) Kind() Kind                { return KindShutdown }

func (m UpsertClient) Target() ObjectID            { return m.Client.ObjectID }
func (m UpsertNode) Target() ObjectID              { return m.Node.ObjectID }
func (m UpsertDevice) Target() ObjectID            { return m.Device.ObjectID }
func (m UpsertLink) Target() ObjectID              { return m.Link.ObjectID }
func (m UpsertMetadata) Target() ObjectID          { return m.Metadata.ObjectID }
func (m RemoveMetadataProperty) Target() ObjectID  { return m.ObjectID }
func (m ClearMetadataProperties) Target() ObjectID { return m.ObjectID }
func (m RemoveObject) Target() ObjectID            { return m.ObjectID }
func (Shutdown) Target() ObjectID                  { return 0 }
