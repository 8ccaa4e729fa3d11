// Package presence republishes status lines to an external presence
// provider.
//
// A [Provider] exposes the handful of primitives a rich-presence SDK
// offers: init, a callback pump, publishing a key (or clearing it with a
// null value), clearing every key, and shutdown. The [Publisher] drives a
// provider through one clear-then-set cycle per status line, so after any
// completed cycle the visible state is exactly:
//
//	steam_display            = template id
//	<static keys>            = their values, in configured order
//	steam_player_group       = group id    (only when group id and size are both set)
//	steam_player_group_size  = group size  (likewise)
//	<dynamic key>            = the line
//
// Nothing from an earlier cycle survives because every cycle starts with
// ClearAll. A failing step is logged and reported in the [CycleResult] but
// does not abort the cycle.
//
// Three providers ship with the package: [MemoryProvider] for tests and dry
// runs, [FileProvider] which mirrors the presence state into a YAML document
// for status bars and chat bridges, and [LogProvider] which wraps another
// provider and logs each primitive call.
package presence
