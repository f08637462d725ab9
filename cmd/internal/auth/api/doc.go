// Package authapi exposes account registration and login over HTTP.
//
// Both endpoints accept their fields as a JSON object, a form body or query
// parameters, and answer {"success":true,"user_id":...} or
// {"success":false,"detail":...}.
package authapi
