// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package livesms parses frames received from the livesms event socket.
//
// The socket speaks a small socket.io-style text vocabulary on the
// "/livesms" namespace:
//
//	3                      heartbeat acknowledgement
//	40/livesms...          namespace joined
//	42/livesms,[name,{..}] data event carrying one received SMS
//
// [Parse] classifies a raw frame into one of the [Frame] variants. Callers
// switch on the concrete type; every variant is a value type and none of
// them carries a reference back into the connection.
//
// # OTP detection
//
// [ExtractOTP] is a best-effort heuristic, not a guaranteed-correct OTP
// detector. It returns the first "ddd-ddd", "ddd ddd" or "dddddd" group in
// the message and will happily match six digits that are part of a phone
// number quoted in the text.
//
// The pattern is evaluated by Go's RE2 engine, where \d and \b are ASCII
// only. Non-ASCII digits such as Arabic-Indic numerals never match, and a
// letter like "é" does not count as a word character, so "é123456" yields
// "123456". Unicode-aware regex engines behave the other way round on both
// inputs.
package livesms
