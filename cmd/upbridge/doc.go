// Command upbridge runs the upload server and talks to a running one.
//
//	upbridge serve                      start the HTTP server
//	upbridge routes                     print the route table
//	upbridge callbacks                  print the callback catalogue
//	upbridge token --sub alice          mint a bearer token
//	upbridge upload a.pdf b.png         push files to a server
//	upbridge ls                         list uploads on a server
//	upbridge start                      upload every submitted file
//	upbridge cancel|retry|rm <id>       act on one upload
//	upbridge prune                      forget rejected/canceled/deleted records
//
// Configuration is read from app.json, .env and the environment, in that
// order of precedence (environment wins).
package main
