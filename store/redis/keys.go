package redis

// Redis key naming conventions. All keys are prefixed with "nom:" to avoid
// collisions with other tenants of the same Redis.

const keyPrefix = "nom:"

// invocationKey returns the key for an invocation entity: nom:task:{id}
func invocationKey(id string) string { return keyPrefix + "task:" + id }

// queueKey returns the Sorted Set key for a queue: nom:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// invocationIDsKey is the Set tracking all invocation IDs for enumeration.
const invocationIDsKey = keyPrefix + "task_ids"

// queuesKey is the Set tracking all queue names ever used.
const queuesKey = keyPrefix + "queues"
