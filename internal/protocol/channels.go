package protocol

// Opcodes on the Server channel.
const (
	ServerLogin                 = 1
	ServerSetWaitPort           = 2
	ServerGetPeerAddress        = 3
	ServerWatchUser             = 5
	ServerUnwatchUser           = 6
	ServerGetUserStatus         = 7
	ServerSayChatroom           = 13
	ServerJoinRoom              = 14
	ServerLeaveRoom             = 15
	ServerConnectToPeer         = 18
	ServerMessageUser           = 22
	ServerMessageAcked          = 23
	ServerFileSearch            = 26
	ServerSetStatus             = 28
	ServerServerPing            = 32
	ServerSharedFolders         = 35
	ServerGetUserStats          = 36
	ServerUserSearch            = 42
	ServerRelogged              = 41
	ServerRoomList              = 64
	ServerPrivilegedUsers       = 69
	ServerHaveNoParents         = 71
	ServerParentMinSpeed        = 83
	ServerParentSpeedRatio      = 84
	ServerCheckPrivileges       = 92
	ServerAcceptChildren        = 100
	ServerPossibleParents       = 102
	ServerWishlistInterval      = 104
	ServerExcludedSearchPhrases = 160
	ServerCantConnectToPeer     = 1001
)

var serverNames = map[uint32]string{
	ServerLogin:                 "Login",
	ServerSetWaitPort:           "SetWaitPort",
	ServerGetPeerAddress:        "GetPeerAddress",
	ServerWatchUser:             "WatchUser",
	ServerUnwatchUser:           "UnwatchUser",
	ServerGetUserStatus:         "GetUserStatus",
	ServerSayChatroom:           "SayChatroom",
	ServerJoinRoom:              "JoinRoom",
	ServerLeaveRoom:             "LeaveRoom",
	ServerConnectToPeer:         "ConnectToPeer",
	ServerMessageUser:           "MessageUser",
	ServerMessageAcked:          "MessageAcked",
	ServerFileSearch:            "FileSearch",
	ServerSetStatus:             "SetStatus",
	ServerServerPing:            "ServerPing",
	ServerSharedFolders:         "SharedFolders",
	ServerGetUserStats:          "GetUserStats",
	ServerUserSearch:            "UserSearch",
	ServerRelogged:              "Relogged",
	ServerRoomList:              "RoomList",
	ServerPrivilegedUsers:       "PrivilegedUsers",
	ServerHaveNoParents:         "HaveNoParents",
	ServerParentMinSpeed:        "ParentMinSpeed",
	ServerParentSpeedRatio:      "ParentSpeedRatio",
	ServerCheckPrivileges:       "CheckPrivileges",
	ServerAcceptChildren:        "AcceptChildren",
	ServerPossibleParents:       "PossibleParents",
	ServerWishlistInterval:      "WishlistInterval",
	ServerExcludedSearchPhrases: "ExcludedSearchPhrases",
	ServerCantConnectToPeer:     "CantConnectToPeer",
}

// ServerMessageName returns the tracing name for a Server-channel opcode.
func ServerMessageName(opcode uint32) string {
	if n, ok := serverNames[opcode]; ok {
		return n
	}
	return "Unknown"
}

// Opcodes on the PeerInit channel (single byte).
const (
	PeerInitPierceFirewall = 0
	PeerInitPeerInit       = 1
)

var peerInitNames = map[uint32]string{
	PeerInitPierceFirewall: "PierceFirewall",
	PeerInitPeerInit:       "PeerInit",
}

func PeerInitMessageName(opcode uint32) string {
	if n, ok := peerInitNames[opcode]; ok {
		return n
	}
	return "Unknown"
}

// Opcodes on the Peer channel.
const (
	PeerGetShareFileList       = 4
	PeerSharedFileListResponse = 5
	PeerFileSearchResponse     = 9
	PeerUserInfoRequest        = 15
	PeerUserInfoResponse       = 16
	PeerFolderContentsRequest  = 36
	PeerFolderContentsResponse = 37
	PeerTransferRequest        = 40
	PeerTransferResponse       = 41
	PeerQueueUpload            = 43
	PeerPlaceInQueueResponse   = 44
	PeerUploadFailed           = 46
	PeerUploadDenied           = 50
	PeerPlaceInQueueRequest    = 51

	// PeerWatchUser shares its numeric value with ServerWatchUser (5):
	// the Peer Actor sends this over the peer connection itself, not the
	// server socket, once a token is known. The two constants exist
	// separately so each channel's opcode table names its own meaning.
	PeerWatchUser = 5
)

var peerNames = map[uint32]string{
	PeerGetShareFileList:       "GetShareFileList",
	PeerSharedFileListResponse: "SharedFileListResponse",
	PeerFileSearchResponse:     "FileSearchResponse",
	PeerUserInfoRequest:        "UserInfoRequest",
	PeerUserInfoResponse:       "UserInfoResponse",
	PeerFolderContentsRequest:  "FolderContentsRequest",
	PeerFolderContentsResponse: "FolderContentsResponse",
	PeerTransferRequest:        "TransferRequest",
	PeerTransferResponse:       "TransferResponse",
	PeerQueueUpload:            "QueueUpload",
	PeerPlaceInQueueResponse:   "PlaceInQueueResponse",
	PeerUploadFailed:           "UploadFailed",
	PeerUploadDenied:           "UploadDenied",
	PeerPlaceInQueueRequest:    "PlaceInQueueRequest",
}

func PeerMessageName(opcode uint32) string {
	if n, ok := peerNames[opcode]; ok {
		return n
	}
	return "Unknown"
}

// Opcodes on the Distributed channel.
const (
	DistributedSearchRequest   = 3
	DistributedBranchLevel     = 4
	DistributedBranchRoot      = 5
	DistributedEmbeddedMessage = 93
)

var distributedNames = map[uint32]string{
	DistributedSearchRequest:   "SearchRequest",
	DistributedBranchLevel:     "BranchLevel",
	DistributedBranchRoot:      "BranchRoot",
	DistributedEmbeddedMessage: "EmbeddedMessage",
}

func DistributedMessageName(opcode uint32) string {
	if n, ok := distributedNames[opcode]; ok {
		return n
	}
	return "Unknown"
}

// MessageName resolves an opcode's tracing name on the given channel.
func MessageName(ch Channel, opcode uint32) string {
	switch ch {
	case ChannelServer:
		return ServerMessageName(opcode)
	case ChannelPeerInit:
		return PeerInitMessageName(opcode)
	case ChannelPeer:
		return PeerMessageName(opcode)
	case ChannelDistributed:
		return DistributedMessageName(opcode)
	default:
		return "Unknown"
	}
}
