// Package config provides configuration structures and utilities for treewalk.
// It defines the browser connection, pacing, sidebar detection and output
// options of a walk, and loads per-workspace profiles from .treewalk.
package config
