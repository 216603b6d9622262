// Package webhook ingests LINE Messaging API webhook deliveries.
//
// # Request Flow
//
//  1. POST arrives at /api/line/webhook
//  2. Body read once, bounded by max_body_size (413 if larger)
//  3. x-line-signature compared with base64(HMAC-SHA256(channel secret, body)) (401 on mismatch)
//  4. Body parsed as a delivery (500 if it is not valid JSON; nothing is buffered)
//  5. User text messages are appended to the inbox, one notification each
//  6. The configured policy sees each message (auto reply runs detached)
//  7. 200 {"status":"ok"}, even when no event matched
//
// Other event types (follow, postback, stickers, images) are skipped silently.
// Redelivered events are buffered again; nothing is deduplicated.
//
// # Drain Read
//
// GET on the same path returns {"messages":[...]} and empties the inbox. It is
// unauthenticated and meant for a single polling operator.
package webhook
