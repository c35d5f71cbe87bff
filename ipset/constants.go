package ipset

// Protocol version sent with every request.
const IPSET_PROTOCOL = 6

// MaxNameLength is the kernel limit on set names, NUL excluded.
const MaxNameLength = 31

// Commands
const (
	IPSET_CMD_NONE     = iota
	IPSET_CMD_PROTOCOL /* 1: Return protocol version */
	IPSET_CMD_CREATE   /* 2: Create a new (empty) set */
	IPSET_CMD_DESTROY  /* 3: Destroy a (empty) set */
	IPSET_CMD_FLUSH    /* 4: Remove all elements from a set */
	IPSET_CMD_RENAME   /* 5: Rename a set */
	IPSET_CMD_SWAP     /* 6: Swap two sets */
	IPSET_CMD_LIST     /* 7: List sets */
	IPSET_CMD_SAVE     /* 8: Save sets */
	IPSET_CMD_ADD      /* 9: Add an element to a set */
	IPSET_CMD_DEL      /* 10: Delete an element from a set */
	IPSET_CMD_TEST     /* 11: Test an element in a set */
	IPSET_CMD_HEADER   /* 12: Get set header data only */
	IPSET_CMD_TYPE     /* 13: Get set type */
)

var commandNames = map[uint8]string{
	IPSET_CMD_PROTOCOL: "protocol",
	IPSET_CMD_CREATE:   "create",
	IPSET_CMD_DESTROY:  "destroy",
	IPSET_CMD_FLUSH:    "flush",
	IPSET_CMD_RENAME:   "rename",
	IPSET_CMD_SWAP:     "swap",
	IPSET_CMD_LIST:     "list",
	IPSET_CMD_SAVE:     "save",
	IPSET_CMD_ADD:      "add",
	IPSET_CMD_DEL:      "del",
	IPSET_CMD_TEST:     "test",
	IPSET_CMD_HEADER:   "header",
	IPSET_CMD_TYPE:     "type",
}

// CommandName returns the ipset(8) name of a command.
func CommandName(cmd uint8) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return "unknown"
}

// Attributes at command level
const (
	IPSET_ATTR_PROTOCOL     = 1  /* 1: Protocol version */
	IPSET_ATTR_SETNAME      = 2  /* 2: Name of the set */
	IPSET_ATTR_TYPENAME     = 3  /* 3: Typename */
	IPSET_ATTR_SETNAME2     = 3  /* Setname at rename/swap */
	IPSET_ATTR_REVISION     = 4  /* 4: Settype revision */
	IPSET_ATTR_FAMILY       = 5  /* 5: Settype family */
	IPSET_ATTR_FLAGS        = 6  /* 6: Flags at command level */
	IPSET_ATTR_DATA         = 7  /* 7: Nested attributes */
	IPSET_ATTR_ADT          = 8  /* 8: Multiple data containers */
	IPSET_ATTR_LINENO       = 9  /* 9: Restore lineno */
	IPSET_ATTR_PROTOCOL_MIN = 10 /* 10: Minimal supported version number */
	IPSET_ATTR_REVISION_MIN = 10 /* type rev min */
	IPSET_ATTR_INDEX        = 11 /* 11: Kernel index of set */
)

// CADT specific attributes
const (
	IPSET_ATTR_IP          = 1
	IPSET_ATTR_IP_FROM     = 1
	IPSET_ATTR_IP_TO       = 2
	IPSET_ATTR_CIDR        = 3
	IPSET_ATTR_PORT        = 4
	IPSET_ATTR_PORT_FROM   = 4
	IPSET_ATTR_PORT_TO     = 5
	IPSET_ATTR_TIMEOUT     = 6
	IPSET_ATTR_PROTO       = 7
	IPSET_ATTR_CADT_FLAGS  = 8
	IPSET_ATTR_CADT_LINENO = IPSET_ATTR_LINENO
	IPSET_ATTR_MARK        = 10
	IPSET_ATTR_MARKMASK    = 11
)

// Create-only specific attributes
const (
	IPSET_ATTR_INITVAL    = 17
	IPSET_ATTR_HASHSIZE   = 18
	IPSET_ATTR_MAXELEM    = 19
	IPSET_ATTR_NETMASK    = 20
	IPSET_ATTR_BUCKETSIZE = 21
	IPSET_ATTR_RESIZE     = 22
	IPSET_ATTR_SIZE       = 23
	IPSET_ATTR_ELEMENTS   = 24
	IPSET_ATTR_REFERENCES = 25
	IPSET_ATTR_MEMSIZE    = 26
)

// ADT specific attributes
const (
	IPSET_ATTR_ETHER    = 17
	IPSET_ATTR_NAME     = 18
	IPSET_ATTR_NAMEREF  = 19
	IPSET_ATTR_IP2      = 20
	IPSET_ATTR_CIDR2    = 21
	IPSET_ATTR_IP2_TO   = 22
	IPSET_ATTR_IFACE    = 23
	IPSET_ATTR_BYTES    = 24
	IPSET_ATTR_PACKETS  = 25
	IPSET_ATTR_COMMENT  = 26
	IPSET_ATTR_SKBMARK  = 27
	IPSET_ATTR_SKBPRIO  = 28
	IPSET_ATTR_SKBQUEUE = 29
	IPSET_ATTR_PAD      = 30
)

// IP specific attributes
const (
	IPSET_ATTR_IPADDR_IPV4 = 1
	IPSET_ATTR_IPADDR_IPV6 = 2
)

// Command level flags
const (
	IPSET_FLAG_LIST_SETNAME = 1 << 1
	IPSET_FLAG_LIST_HEADER  = 1 << 2
)

// CADT flags
const (
	IPSET_FLAG_BEFORE        = 1 << 0
	IPSET_FLAG_PHYSDEV       = 1 << 1
	IPSET_FLAG_NOMATCH       = 1 << 2
	IPSET_FLAG_WITH_COUNTERS = 1 << 3
	IPSET_FLAG_WITH_COMMENT  = 1 << 4
	IPSET_FLAG_WITH_FORCEADD = 1 << 5
	IPSET_FLAG_WITH_SKBINFO  = 1 << 6
)

// Error codes
const (
	IPSET_ERR_PRIVATE = 4096 + iota
	IPSET_ERR_PROTOCOL
	IPSET_ERR_FIND_TYPE
	IPSET_ERR_MAX_SETS
	IPSET_ERR_BUSY
	IPSET_ERR_EXIST_SETNAME2
	IPSET_ERR_TYPE_MISMATCH
	IPSET_ERR_EXIST
	IPSET_ERR_INVALID_CIDR
	IPSET_ERR_INVALID_NETMASK
	IPSET_ERR_INVALID_FAMILY
	IPSET_ERR_TIMEOUT
	IPSET_ERR_REFERENCED
	IPSET_ERR_IPADDR_IPV4
	IPSET_ERR_IPADDR_IPV6
	IPSET_ERR_COUNTER
	IPSET_ERR_COMMENT
	IPSET_ERR_INVALID_MARKMASK
	IPSET_ERR_SKBINFO

	/* Type specific error codes */
	IPSET_ERR_TYPE_SPECIFIC = 4352
)

// hash type specific error codes
const (
	IPSET_ERR_HASH_FULL = IPSET_ERR_TYPE_SPECIFIC + iota
	IPSET_ERR_HASH_ELEM
	IPSET_ERR_INVALID_PROTO
	IPSET_ERR_MISSING_PROTO
	IPSET_ERR_HASH_RANGE_UNSUPPORTED
	IPSET_ERR_HASH_RANGE
)
