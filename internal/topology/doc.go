// Package topology is the cluster's placement directory: which nodes
// exist, what region and capabilities each advertises, which named
// partitions they belong to (healthy only with a strict member majority
// active), how regions connect to each other (a directed link graph whose
// edges carry a latency/bandwidth reliability score and go inactive below
// a configurable threshold), and which services are reachable where.
package topology
