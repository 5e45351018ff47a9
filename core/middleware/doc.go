// Package middleware groups the HTTP middleware used by the restore API.
//
//   - auth: rejects requests without the configured X-API-Key.
//   - rayid: tags each request with a ray id, stored in fiber locals and echoed
//     in the X-Ray-ID response header, so log lines of one request can be joined.
package middleware
