package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           modelconv API
// @version         0.1.0
// @description     HTTP API for model conversion and serving config validation.
//
// @contact.name   modelconv maintainers
// @contact.url    https://github.com/your-org/modelconv
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
