// Package restore exposes the cloud restore flow over HTTP.
//
// A client lists cloud snapshots, starts a session for one of them (which
// fetches the file and diffs it against the local store), walks the wizard
// steps (strategy, content, conflicts, confirmation) and finally applies the
// merge. The last apply can be rolled back from its backup. Local data can also
// be uploaded to the cloud as a new snapshot.
//
// Only one session is active per service; starting a new one replaces an idle
// session and is refused while an apply is running.
package restore
