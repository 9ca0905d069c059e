package redis

// Key namespace for a queue named Q:
//
//	ready:Q       List   — FIFO of ready job ids
//	delayed:Q     ZSet   — job ids scored by availability time
//	processing:Q  Set    — ids of in-flight claims
//	timeout:Q     ZSet   — in-flight ids scored by visibility deadline
//	job:Q:{id}    Hash   — the full job record

func readyKey(queue string) string { return "ready:" + queue }

func delayedKey(queue string) string { return "delayed:" + queue }

func processingKey(queue string) string { return "processing:" + queue }

func timeoutKey(queue string) string { return "timeout:" + queue }

func jobKey(queue, id string) string { return "job:" + queue + ":" + id }
