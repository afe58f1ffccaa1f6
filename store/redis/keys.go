package redis

// All keys are prefixed with "dios:" to avoid collisions.
const keyPrefix = "dios:"

// ── Job keys ──

// jobKeyPrefix is the common prefix of job hashes, passed to Lua scripts.
const jobKeyPrefix = keyPrefix + "job:"

// jobKey returns the key for a job entity: dios:job:{id}
func jobKey(id string) string { return jobKeyPrefix + id }

// jobIDsKey is the Sorted Set of all job IDs scored by creation time.
const jobIDsKey = keyPrefix + "job_ids"

// openJobsKey is the Sorted Set of non-terminal job IDs scored by creation
// time.
const openJobsKey = keyPrefix + "open_jobs"

// pairKeyPrefix is the common prefix of pair indexes, passed to Lua scripts.
const pairKeyPrefix = keyPrefix + "pair:"

// pairKey returns the Sorted Set of jobs assigned to one worker/device
// pair, scored by creation time: dios:pair:{worker}:{udid}. Worker IDs
// contain no colon, so the first one after the prefix splits the two.
// Entries may be stale; readers check the job hash.
func pairKey(workerID, udid string) string { return pairKeyPrefix + workerID + ":" + udid }

// ── Worker keys ──

// workerKey returns the key for a worker entity: dios:worker:{id}
func workerKey(id string) string { return keyPrefix + "worker:" + id }

// workerIDsKey is the Sorted Set of worker IDs scored by creation time.
const workerIDsKey = keyPrefix + "worker_ids"

// ── Device keys ──

// deviceKey returns the key for a device entity: dios:device:{udid}
func deviceKey(udid string) string { return keyPrefix + "device:" + udid }

// deviceIDsKey is the Sorted Set of udids, all scored 0 for lexical order.
const deviceIDsKey = keyPrefix + "device_ids"

// ── Account keys ──

// accountKey returns the key for an account entity: dios:account:{uid}
func accountKey(uid string) string { return keyPrefix + "account:" + uid }

// accountIDsKey is the Sorted Set of unique identifiers, all scored 0.
const accountIDsKey = keyPrefix + "account_ids"
