/*
Package fst implements a finite state transducer: an ordered, immutable
map from byte string keys to byte string values, stored as a minimal
acyclic automaton laid out in a double array.

Keys sharing prefixes share states, and keys sharing suffixes do too, so
the structure is usually far smaller than the key set it holds. Values
ride on the transitions: each edge carries an output fragment, placed as
close to the root as possible, and a lookup concatenates the fragments it
passes. Because of that a lookup also tells you, at every prefix, the
bytes all keys below that prefix have in common.

The double array keeps the transition table flat. Following one input
byte is an addition and a single comparison, regardless of how many
transitions leave the state, which makes lookups a handful of array reads
per input byte.

To build a transducer, create a Builder and Insert keys with their
values. The two restrictions are that a key cannot repeat and keys must
arrive in strictly increasing byte order. Finish returns the encoded
result. Encode accepts any Automaton instead, for state tables assembled
by other means.

A transducer can be written out with Save or WriteTo and opened again
with Load, which memory maps the file and answers queries straight out of
the mapping: opening does no work proportional to the file size, and the
first lookup is available immediately. Read does the same against any
io.ReaderAt, and ReadAll trades the lazy opening for a fully in memory
copy. The format is described at the top of disk.go.
*/
package fst
