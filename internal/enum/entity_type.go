package enum

type EntityType string

const (
	JOB              EntityType = "JOB"
	DELIVERY_TRIGGER EntityType = "DELIVERY_TRIGGER"
	DELIVERY_EVENT   EntityType = "DELIVERY_EVENT"
)

func (entityType EntityType) String() string {
	return string(entityType)
}
